//go:build integration

package artifacts

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/StricklySoft/contentflow/internal/testutil/containers"
	"github.com/StricklySoft/contentflow/internal/testutil/fixtures"
	objstore "github.com/StricklySoft/contentflow/pkg/clients/minio"
)

type ArchiveSuite struct {
	suite.Suite
	ctx    context.Context
	result *containers.MinIOResult
	client *objstore.Client
}

func TestArchiveSuite(t *testing.T) {
	suite.Run(t, new(ArchiveSuite))
}

func (s *ArchiveSuite) SetupSuite() {
	s.ctx = context.Background()
	res, err := containers.StartMinIO(s.ctx)
	require.NoError(s.T(), err)
	s.result = res

	cfg := objstore.DefaultConfig()
	cfg.Endpoint = res.Endpoint
	cfg.AccessKey = res.AccessKey
	cfg.SecretKey = objstore.Secret(res.SecretKey)
	s.client, err = objstore.NewClient(s.ctx, *cfg)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.client.EnsureBucket(s.ctx))
}

func (s *ArchiveSuite) TearDownSuite() {
	if s.result != nil {
		_ = s.result.Container.Terminate(s.ctx)
	}
}

func (s *ArchiveSuite) TestArchiveAndDownload() {
	a := New(s.client, nil)

	key, err := a.Archive(s.ctx, "wf-int", fixtures.Now, fixtures.CompliantDraft)
	s.Require().NoError(err)
	s.Equal("blog_2026-03-14_wf-int.md", key)

	u, err := a.URL(s.ctx, key, time.Minute)
	s.Require().NoError(err)

	resp, err := http.Get(u.String())
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal(fixtures.CompliantDraft, string(body))
}

func (s *ArchiveSuite) TestURL_MissingObject() {
	_, err := New(s.client, nil).URL(s.ctx, "blog_2020-01-01_nothing.md", time.Minute)
	s.Error(err)
}
