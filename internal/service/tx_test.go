package service

import "context"

type testTxRepos struct {
	knowledgeTexts KnowledgeTextRepositoryInterface
}

func (t *testTxRepos) KnowledgeTexts() KnowledgeTextRepositoryInterface {
	return t.knowledgeTexts
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
