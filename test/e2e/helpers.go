//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/knowtext/internal/api/handlers"
	"github.com/cloo-solutions/knowtext/internal/cache"
	"github.com/cloo-solutions/knowtext/internal/database"
	"github.com/cloo-solutions/knowtext/internal/logger"
	"github.com/cloo-solutions/knowtext/internal/repository"
	"github.com/cloo-solutions/knowtext/internal/server"
	"github.com/cloo-solutions/knowtext/internal/service"
	"github.com/cloo-solutions/knowtext/internal/storage"
	"github.com/cloo-solutions/knowtext/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	RedisC       *testutil.RedisContainer
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	S3Config     storage.S3ClientConfig
	Service      *service.KnowledgeTextService
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts postgres, redis and RustFS containers and serves the
// API on a free port.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	redisC := testutil.NewRedisContainer(ctx, t)

	if _, err := database.MigrateUp(pgC.ConnectionString(), "file://../../migrations"); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	pool, err := database.NewPool(ctx, pgC.ConnectionString(), 10)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	s3Cfg := storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "knowtext-e2e",
		UsePathStyle:    true,
	}
	s3Client, err := storage.NewS3Client(ctx, s3Cfg)
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	redisClient, err := cache.NewRedisClient(ctx, redisC.Addr())
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	svc := service.NewKnowledgeTextService(
		repository.NewKnowledgeTextRepository(pool),
		repository.NewTxRunner(pool),
		service.WithTreeCache(cache.NewTreeCache(redisClient, time.Minute)),
		service.WithSnapshotStore(s3Client),
	)

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		RedisC:     redisC,
		Pool:       pool,
		Redis:      redisClient,
		S3Config:   s3Cfg,
		Service:    svc,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.ServerURL, env.ServerCloser = startServer(t, pool, svc, port)

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RedisC != nil {
		_ = e.RedisC.Terminate(e.Ctx)
	}
	if e.RustFSC != nil {
		_ = e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds knowtextd into a temp dir
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "knowtext-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "knowtextd"), "./cmd/knowtextd")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build knowtextd: %v\n%s", err, out)
	}
}

// RunKnowtextd runs a knowtextd command against the test containers
func (e *E2ETestEnv) RunKnowtextd(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "knowtextd"), args...)
	cmd.Dir = "../.."
	cmd.Env = append(os.Environ(),
		"KNOWTEXT_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"KNOWTEXT_REDIS_ADDR="+e.RedisC.Addr(),
		"KNOWTEXT_S3_ENDPOINT="+e.S3Config.Endpoint,
		"KNOWTEXT_S3_ACCESS_KEY_ID="+e.S3Config.AccessKeyID,
		"KNOWTEXT_S3_SECRET_ACCESS_KEY="+e.S3Config.SecretAccessKey,
		"KNOWTEXT_S3_BUCKET="+e.S3Config.Bucket,
		"KNOWTEXT_LOG_MODE=production",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) Patch(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPatch, path, body)
}

func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil)
}

// doRequest returns an error for transport failures and for any status >= 400.
// The decoded response is returned in both cases when the body is an envelope.
func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reqBody = bytes.NewReader([]byte(b))
		default:
			jsonData, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal body: %w", err)
			}
			reqBody = bytes.NewReader(jsonData)
		}
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if err := json.Unmarshal(respBody, apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}
	return apiResp, nil
}

// DownloadFile downloads a file from the presigned URL
func (e *E2ETestEnv) DownloadFile(downloadURL string) ([]byte, error) {
	resp, err := e.HTTPClient.Get(downloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func startServer(t *testing.T, pool *pgxpool.Pool, svc *service.KnowledgeTextService, port int) (string, func()) {
	router := server.NewRouter(server.RouterConfig{
		Logger:               logger.Nop(),
		HealthHandler:        handlers.NewHealthHandler(pool),
		KnowledgeTextHandler: handlers.NewKnowledgeTextHandler(svc),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
