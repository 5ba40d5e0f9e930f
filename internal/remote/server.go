package remote

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// InMemoryServer is a minimal Bazel-REAPI-subset CAS backed by a map, used
// by this package's tests and available for local/offline development. It
// has no teacher file to ground on directly (turbo's own internal/server
// backs a filewatcher daemon, not a CAS), so it's written fresh in the
// same constructor-injected-logger, started-time-tracking shape turbo's
// server.New uses.
type InMemoryServer struct {
	logger  hclog.Logger
	started time.Time

	mu     sync.Mutex
	blobs  map[string][]byte
	assets map[string]Digest // URI -> digest, from PushBlob
}

// NewInMemoryServer returns a ready-to-register Server.
func NewInMemoryServer(logger hclog.Logger) *InMemoryServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &InMemoryServer{
		logger:  logger.Named("remote"),
		started: time.Now(),
		blobs:   make(map[string][]byte),
		assets:  make(map[string]Digest),
	}
}

func (s *InMemoryServer) GetCapabilities(ctx context.Context, req *CapabilitiesRequest) (*CapabilitiesResponse, error) {
	return &CapabilitiesResponse{
		DigestFunctions: []string{"SHA256"},
		Compressors:     []string{"identity", "gzip"},
	}, nil
}

func (s *InMemoryServer) BatchUpdateBlobs(ctx context.Context, req *BatchUpdateBlobsRequest) (*BatchUpdateBlobsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &BatchUpdateBlobsResponse{Statuses: make([]BlobStatus, 0, len(req.Blobs))}
	for _, b := range req.Blobs {
		s.blobs[b.Digest.Hash] = append([]byte(nil), b.Data...)
		resp.Statuses = append(resp.Statuses, BlobStatus{Hash: b.Digest.Hash, Code: 0})
	}
	return resp, nil
}

func (s *InMemoryServer) FindMissingBlobs(ctx context.Context, req *FindMissingBlobsRequest) (*FindMissingBlobsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &FindMissingBlobsResponse{}
	for _, d := range req.Digests {
		if _, ok := s.blobs[d.Hash]; !ok {
			resp.MissingDigests = append(resp.MissingDigests, d)
		}
	}
	return resp, nil
}

func (s *InMemoryServer) BatchReadBlobs(ctx context.Context, req *BatchReadBlobsRequest) (*BatchReadBlobsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &BatchReadBlobsResponse{}
	for _, d := range req.Digests {
		data, ok := s.blobs[d.Hash]
		if !ok {
			resp.Responses = append(resp.Responses, BlobResponse{Digest: d, Code: 5, Msg: "not found"})
			continue
		}
		resp.Responses = append(resp.Responses, BlobResponse{Digest: d, Data: data, Code: 0})
	}
	return resp, nil
}

func (s *InMemoryServer) PushBlob(ctx context.Context, req *PushBlobRequest) (*PushBlobResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uri := range req.URIs {
		s.assets[uri] = req.Digest
	}
	return &PushBlobResponse{}, nil
}

func (s *InMemoryServer) FetchBlob(ctx context.Context, req *FetchBlobRequest) (*FetchBlobResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uri := range req.URIs {
		if d, ok := s.assets[uri]; ok {
			return &FetchBlobResponse{URI: uri, Digest: d}, nil
		}
	}
	return nil, errAssetNotFound
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errAssetNotFound sentinelError = "remote: asset not found"
