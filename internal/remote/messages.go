package remote

// These are the request/response shapes for the Bazel Remote Execution
// API subset spec.md §4.6/§6 names: Capabilities.GetCapabilities,
// ContentAddressableStorage.{BatchUpdateBlobs,FindMissingBlobs,
// BatchReadBlobs}, and the asset.v1 Push/Fetch pair. turbo depends on
// google.golang.org/grpc + google.golang.org/protobuf directly for its own
// generated turbodprotocol daemon service, but the .proto/protoc step that
// produces that generated code isn't available in this tree, so these are
// hand-written Go structs carried over gRPC with a JSON wire codec
// (codec.go) instead of the generated protobuf encoding — the transport,
// TLS, compression and streaming machinery is the real
// google.golang.org/grpc library; only the message encoding is simplified.
// See DESIGN.md for this decision.

// Digest identifies a blob by content hash and size, mirroring REAPI's
// own Digest message.
type Digest struct {
	Hash      string
	SizeBytes int64
}

// CapabilitiesRequest is sent once at connect time.
type CapabilitiesRequest struct {
	InstanceName string
}

// CapabilitiesResponse reports what the remote endpoint supports.
// Capabilities.GetCapabilities: validates digest function SHA256 and
// compression (identity or gzip), per spec.md §4.6.
type CapabilitiesResponse struct {
	DigestFunctions []string
	Compressors     []string
}

// Blob is a content-addressed payload carried inline in a batch request.
type Blob struct {
	Digest Digest
	Data   []byte
}

// BlobStatus reports one blob's outcome within a batch call. Code follows
// google.rpc.Code conventions: 0 = OK.
type BlobStatus struct {
	Hash string
	Code int32
	Msg  string
}

// BatchUpdateBlobsRequest pushes blobs. Client.Upload sends only the
// output archive in it; the hash manifest is not uploaded.
type BatchUpdateBlobsRequest struct {
	InstanceName string
	Blobs        []Blob
}

type BatchUpdateBlobsResponse struct {
	Statuses []BlobStatus
}

// FindMissingBlobsRequest asks the remote which of Digests it doesn't
// already hold.
type FindMissingBlobsRequest struct {
	InstanceName string
	Digests      []Digest
}

type FindMissingBlobsResponse struct {
	MissingDigests []Digest
}

// BatchReadBlobsRequest fetches blob contents inline (small-blob path; the
// spec also allows a streaming ByteStream.Read for large blobs, not needed
// at moon-core's archive sizes).
type BatchReadBlobsRequest struct {
	InstanceName string
	Digests      []Digest
}

type BlobResponse struct {
	Digest Digest
	Data   []byte
	Code   int32
	Msg    string
}

type BatchReadBlobsResponse struct {
	Responses []BlobResponse
}

// PushBlobRequest associates a URI with a digest via the asset API, per
// spec.md §4.6 "Asset API PushBlob with qualifiers moon.project_id,
// moon.project_source, moon.task_id, moon.task_target,
// resource_type=application/gzip".
type PushBlobRequest struct {
	URIs       []string
	Qualifiers map[string]string
	Digest     Digest
}

type PushBlobResponse struct{}

// FetchBlobRequest resolves a URI back to a digest.
type FetchBlobRequest struct {
	URIs       []string
	Qualifiers map[string]string
}

type FetchBlobResponse struct {
	URI    string
	Digest Digest
}
