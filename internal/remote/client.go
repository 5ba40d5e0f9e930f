// Package remote implements the optional remote CAS client spec.md
// §4.6/§6 describes: a Bazel Remote Execution API subset (capabilities
// negotiation, blob upload/download, asset push/fetch) reached over gRPC.
// Grounded on turbo's internal/client/client.go for the overall shape
// (capability negotiation at connect, soft-fail-to-local error policy) and
// on turbo's own direct google.golang.org/grpc + google.golang.org/protobuf
// dependencies (internal/server, internal/daemonclient), translated from
// turbo's own daemon protocol to the REAPI subset this spec names. See
// messages.go for why the wire encoding is JSON-over-gRPC rather than
// generated protobuf.
package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/moonrepo/moon-core/internal/runner"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// defaultInstanceName is the stable instance_name spec.md §4.6 names:
// "BatchUpdateBlobs for pushing blobs ... under a stable instance_name
// (default moon_task_outputs)".
const defaultInstanceName = "moon_task_outputs"

// TLSConfig configures transport security for a remote connection. A zero
// value dials insecurely (plaintext), matching a local/dev remote cache.
type TLSConfig struct {
	Enabled bool
	// CertFile/KeyFile are the client's own cert/key for mTLS; both empty
	// means TLS without a client certificate.
	CertFile string
	KeyFile  string
	// CAFile, when set, is used in place of the system root CA pool.
	CAFile string
	// ServerName overrides the SNI/verification name.
	ServerName string
}

// Options configures a Client.
type Options struct {
	Address      string
	InstanceName string // defaults to defaultInstanceName
	TLS          TLSConfig
	Logger       hclog.Logger
}

// Client is the runner-facing remote CAS client. It satisfies
// runner.RemoteClient.
type Client struct {
	conn         *grpc.ClientConn
	instanceName string
	logger       hclog.Logger
}

var _ runner.RemoteClient = (*Client)(nil)

// Connect dials opts.Address and validates the endpoint's capabilities
// (spec.md §4.6 "GetCapabilities at connect: validates digest function
// SHA256 and compression (identity or gzip)"). The returned Client is
// ready for HasBlob/Download/Upload.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("remote")

	creds, err := dialCredentials(opts.TLS)
	if err != nil {
		return nil, fmt.Errorf("remote: building transport credentials: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := grpc.DialContext(dialCtx, opts.Address,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("remote: dialing %s: %w", opts.Address, err)
	}

	instanceName := opts.InstanceName
	if instanceName == "" {
		instanceName = defaultInstanceName
	}
	c := &Client{conn: conn, instanceName: instanceName, logger: logger}

	if err := c.validateCapabilities(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func dialCredentials(cfg TLSConfig) (credentials.TransportCredentials, error) {
	if !cfg.Enabled {
		return insecure.NewCredentials(), nil
	}
	tlsCfg := &tls.Config{ServerName: cfg.ServerName}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA file %s contained no usable certificates", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp)
}

// validateCapabilities implements spec.md §4.6's connect-time check.
func (c *Client) validateCapabilities(ctx context.Context) error {
	resp := new(CapabilitiesResponse)
	if err := c.invoke(ctx, "GetCapabilities", &CapabilitiesRequest{InstanceName: c.instanceName}, resp); err != nil {
		return fmt.Errorf("remote: GetCapabilities: %w", err)
	}
	if !containsString(resp.DigestFunctions, "SHA256") {
		return fmt.Errorf("remote: endpoint does not support digest function SHA256 (has %v)", resp.DigestFunctions)
	}
	if !containsString(resp.Compressors, "identity") && !containsString(resp.Compressors, "gzip") {
		return fmt.Errorf("remote: endpoint supports neither identity nor gzip compression (has %v)", resp.Compressors)
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// HasBlob reports whether hash is already present remotely, via
// FindMissingBlobs with a single digest (spec.md §4.6 "FindMissingBlobs ...
// for pulls").
func (c *Client) HasBlob(ctx context.Context, hash string) (bool, error) {
	req := &FindMissingBlobsRequest{InstanceName: c.instanceName, Digests: []Digest{{Hash: hash}}}
	resp := new(FindMissingBlobsResponse)
	if err := c.invoke(ctx, "FindMissingBlobs", req, resp); err != nil {
		return false, fmt.Errorf("remote: FindMissingBlobs: %w", err)
	}
	return len(resp.MissingDigests) == 0, nil
}

// Download fetches hash's blob and writes it to destPath, via
// BatchReadBlobs (spec.md §4.6 "BatchReadBlobs ... for pulls").
func (c *Client) Download(ctx context.Context, hash, destPath string) error {
	req := &BatchReadBlobsRequest{InstanceName: c.instanceName, Digests: []Digest{{Hash: hash}}}
	resp := new(BatchReadBlobsResponse)
	if err := c.invoke(ctx, "BatchReadBlobs", req, resp); err != nil {
		return fmt.Errorf("remote: BatchReadBlobs: %w", err)
	}
	if len(resp.Responses) == 0 || resp.Responses[0].Code != 0 {
		return fmt.Errorf("remote: blob %s not found", hash)
	}
	return writeFileAtomic(destPath, resp.Responses[0].Data)
}

// Upload pushes archivePath's bytes under hash, then registers an asset
// pointing the task's target at that digest, per spec.md §4.6 "Asset API
// PushBlob with qualifiers moon.project_id, moon.project_source,
// moon.task_id, moon.task_target, resource_type=application/gzip".
// Retries transient failures with exponential backoff
// (cenkalti/backoff/v4, as spec.md §11's domain stack table assigns to
// this call site); per §4.6/§9 "Open question", a blob upload that
// succeeds followed by an asset-registration failure is accepted as-is —
// no two-phase commit is attempted.
func (c *Client) Upload(ctx context.Context, hash, archivePath string, meta runner.UploadMeta) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("remote: reading archive: %w", err)
	}
	digest := Digest{Hash: hash, SizeBytes: int64(len(data))}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(func() error {
		req := &BatchUpdateBlobsRequest{InstanceName: c.instanceName, Blobs: []Blob{{Digest: digest, Data: data}}}
		resp := new(BatchUpdateBlobsResponse)
		if err := c.invoke(ctx, "BatchUpdateBlobs", req, resp); err != nil {
			return err
		}
		for _, st := range resp.Statuses {
			if st.Code != 0 {
				return fmt.Errorf("remote: blob %s rejected: %s", st.Hash, st.Msg)
			}
		}
		return nil
	}, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("remote: BatchUpdateBlobs: %w", err)
	}

	pushReq := &PushBlobRequest{
		URIs: []string{assetURI(meta.ProjectID, meta.TaskID)},
		Qualifiers: map[string]string{
			"moon.project_id":     meta.ProjectID,
			"moon.project_source": meta.ProjectSource,
			"moon.task_id":        meta.TaskID,
			"moon.task_target":    meta.TaskTarget,
			"resource_type":       "application/gzip",
		},
		Digest: digest,
	}
	if err := c.invoke(ctx, "PushBlob", pushReq, new(PushBlobResponse)); err != nil {
		return fmt.Errorf("remote: PushBlob: %w", err)
	}
	return nil
}

func assetURI(projectID, taskID string) string {
	return fmt.Sprintf("moon://%s/%s", projectID, taskID)
}

func writeFileAtomic(destPath string, data []byte) error {
	tmp := destPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}

// dialTimeout bounds how long Connect blocks on the initial handshake.
const dialTimeout = 10 * time.Second
