//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type knowledgeText struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenantId"`
	TenantWide bool                   `json:"tenantWide"`
	TeamID     *string                `json:"teamId"`
	UserID     *string                `json:"userId"`
	ParentID   *string                `json:"parentId"`
	Text       *string                `json:"text"`
	Title      string                 `json:"title"`
	Meta       map[string]interface{} `json:"meta"`
	Hidden     bool                   `json:"hidden"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	DeletedAt  *time.Time             `json:"deletedAt"`
	Children   []*knowledgeText       `json:"children"`
}

func decode[T any](t *testing.T, resp *APIResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func (e *E2ETestEnv) create(t *testing.T, body map[string]interface{}) *knowledgeText {
	t.Helper()
	resp, err := e.Post("/knowledge-texts", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)
	return decode[*knowledgeText](t, resp)
}

func TestE2E_KnowledgeTextLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	const tenant = "tenant-e2e"

	root := env.create(t, map[string]interface{}{
		"tenantId":   tenant,
		"title":      "Handbook",
		"text":       "Company handbook",
		"tenantWide": true,
		"meta":       map[string]interface{}{"lang": "en", "version": 2, "tags": []string{"hr"}},
	})
	assert.True(t, root.TenantWide)
	assert.Nil(t, root.ParentID)
	assert.Equal(t, "en", root.Meta["lang"])
	assert.Equal(t, float64(2), root.Meta["version"])

	var childID string

	t.Run("create child", func(t *testing.T) {
		child := env.create(t, map[string]interface{}{
			"tenantId": tenant,
			"title":    "Vacation policy",
			"text":     "25 days",
			"parentId": root.ID,
			"teamId":   "team-hr",
		})
		require.NotNil(t, child.ParentID)
		assert.Equal(t, root.ID, *child.ParentID)
		assert.Equal(t, "team-hr", *child.TeamID)
		assert.Empty(t, child.Meta)
		childID = child.ID
	})

	t.Run("insert validation", func(t *testing.T) {
		resp, err := env.Post("/knowledge-texts", map[string]interface{}{"tenantId": tenant, "text": "x"})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)

		resp, err = env.Post("/knowledge-texts", map[string]interface{}{
			"tenantId": "other-tenant", "title": "x", "text": "x", "parentId": root.ID,
		})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.Status)

		resp, err = env.Post("/knowledge-texts", `{"tenantId":"t","title":"x","text":"x","meta":[1]}`)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
	})

	t.Run("get with depth", func(t *testing.T) {
		resp, err := env.Get("/knowledge-texts/" + root.ID + "?depth=all")
		require.NoError(t, err)
		got := decode[*knowledgeText](t, resp)
		require.Len(t, got.Children, 1)
		assert.Equal(t, childID, got.Children[0].ID)
		assert.NotNil(t, got.Children[0].Children, "leaf children are expanded to an empty list")

		resp, err = env.Get("/knowledge-texts/" + root.ID)
		require.NoError(t, err)
		assert.Nil(t, decode[*knowledgeText](t, resp).Children)
	})

	t.Run("partial update", func(t *testing.T) {
		resp, err := env.Patch("/knowledge-texts/"+childID, map[string]interface{}{
			"title":  "Leave policy",
			"teamId": nil,
		})
		require.NoError(t, err)
		got := decode[*knowledgeText](t, resp)
		assert.Equal(t, "Leave policy", got.Title)
		assert.Nil(t, got.TeamID)
		require.NotNil(t, got.Text)
		assert.Equal(t, "25 days", *got.Text, "absent fields are untouched")
		assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
	})

	t.Run("reparent under descendant is rejected", func(t *testing.T) {
		resp, err := env.Patch("/knowledge-texts/"+root.ID, map[string]interface{}{"parentId": childID})
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
		assert.Equal(t, "INVALID_OPERATION", resp.Code)
	})

	t.Run("list and paginate", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			env.create(t, map[string]interface{}{
				"tenantId": tenant,
				"title":    fmt.Sprintf("Note %d", i),
				"text":     "body",
				"parentId": root.ID,
			})
		}

		var ids []string
		cursor := ""
		for page := 0; page < 10; page++ {
			q := url.Values{"tenantId": {tenant}, "parentId": {root.ID}, "limit": {"2"}, "summary": {"true"}}
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			resp, err := env.Get("/knowledge-texts?" + q.Encode())
			require.NoError(t, err)
			out := decode[struct {
				Items   []*knowledgeText `json:"items"`
				Cursor  string           `json:"cursor"`
				HasMore bool             `json:"hasMore"`
			}](t, resp)
			for _, k := range out.Items {
				assert.Nil(t, k.Text, "summary omits text")
				ids = append(ids, k.ID)
			}
			if !out.HasMore {
				break
			}
			cursor = out.Cursor
		}
		assert.Len(t, ids, 4)
		assert.Equal(t, childID, ids[0])
	})

	t.Run("tree", func(t *testing.T) {
		resp, err := env.Get("/tenants/" + tenant + "/tree")
		require.NoError(t, err)
		tree := decode[struct {
			TenantID string           `json:"tenantId"`
			Items    []*knowledgeText `json:"items"`
		}](t, resp)
		require.Len(t, tree.Items, 1)
		assert.Len(t, tree.Items[0].Children, 4)
	})

	t.Run("delete and restore subtree", func(t *testing.T) {
		resp, err := env.Delete("/knowledge-texts/" + root.ID)
		require.NoError(t, err)
		assert.NotNil(t, decode[*knowledgeText](t, resp).DeletedAt)

		resp, err = env.Get("/knowledge-texts/" + childID)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)

		resp, err = env.Get("/knowledge-texts/" + childID + "?includeDeleted=true")
		require.NoError(t, err)
		assert.NotNil(t, decode[*knowledgeText](t, resp).DeletedAt)

		resp, err = env.Get("/tenants/" + tenant + "/tree")
		require.NoError(t, err)
		assert.Contains(t, string(resp.Data), `"items":[]`, "cache was invalidated")

		resp, err = env.Post("/knowledge-texts/"+childID+"/restore", nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Status, "parent still deleted")

		_, err = env.Post("/knowledge-texts/"+root.ID+"/restore", nil)
		require.NoError(t, err)

		resp, err = env.Get("/knowledge-texts/" + childID)
		require.NoError(t, err)
		assert.Nil(t, decode[*knowledgeText](t, resp).DeletedAt)
	})

	t.Run("export snapshot", func(t *testing.T) {
		resp, err := env.Post("/tenants/"+tenant+"/exports", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.Status)
		result := decode[struct {
			Key         string `json:"key"`
			DownloadURL string `json:"downloadUrl"`
			Count       int    `json:"count"`
		}](t, resp)
		assert.True(t, strings.HasPrefix(result.Key, "exports/"+tenant+"/"))
		assert.Equal(t, 5, result.Count)

		body, err := env.DownloadFile(result.DownloadURL)
		require.NoError(t, err)
		var snapshot struct {
			TenantID string           `json:"tenantId"`
			Items    []*knowledgeText `json:"items"`
		}
		require.NoError(t, json.Unmarshal(body, &snapshot))
		assert.Equal(t, tenant, snapshot.TenantID)
		require.Len(t, snapshot.Items, 1)
		assert.Equal(t, root.ID, snapshot.Items[0].ID)
	})
}

func TestE2E_PurgeAndCLI(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildBinaries()

	const tenant = "tenant-cli"

	keep := env.create(t, map[string]interface{}{"tenantId": tenant, "title": "Keep", "text": "k"})
	env.create(t, map[string]interface{}{"tenantId": tenant, "title": "Nested", "text": "n", "parentId": keep.ID})
	drop := env.create(t, map[string]interface{}{"tenantId": tenant, "title": "Drop", "text": "d"})

	_, err := env.Delete("/knowledge-texts/" + drop.ID)
	require.NoError(t, err)

	t.Run("tree command", func(t *testing.T) {
		out, err := env.RunKnowtextd("tree", tenant)
		require.NoError(t, err, out)
		assert.Contains(t, out, "- Keep ("+keep.ID+")")
		assert.Contains(t, out, "  - Nested (")
		assert.NotContains(t, out, "Drop")
	})

	t.Run("purge command", func(t *testing.T) {
		out, err := env.RunKnowtextd("purge", "--retention", "0s")
		require.NoError(t, err, out)
		assert.Contains(t, out, "Purged 1 knowledge texts")

		resp, err := env.Get("/knowledge-texts/" + drop.ID + "?includeDeleted=true")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)
	})

	t.Run("migrate version", func(t *testing.T) {
		out, err := env.RunKnowtextd("migrate", "version")
		require.NoError(t, err, out)
		assert.Contains(t, out, "version 1")
	})

	t.Run("export command", func(t *testing.T) {
		out, err := env.RunKnowtextd("export", tenant, "-o", "json")
		require.NoError(t, err, out)
		assert.Contains(t, out, `"count": 2`)
	})
}
