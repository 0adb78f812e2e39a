package syncsdk

import (
	"context"
	"errors"
	"hash/crc32"
	"net/http"
	"path"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/syftsync/internal/codec"
	"github.com/openmined/syftsync/internal/endpoint"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/version"
)

// Client is the remote side of a sync, talking to a syftsync server
type Client struct {
	client *req.Client
	codec  *codec.Codec
}

var _ endpoint.Endpoint = (*Client)(nil)

// New creates a new Client
func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := cfg.RetryCount
	if retries == 0 {
		retries = DefaultRetryCount
	} else if retries < 0 {
		retries = 0
	}

	client := req.C().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetCommonRetryCount(retries).
		SetCommonRetryFixedInterval(1*time.Second).
		SetCommonRetryCondition(retryable).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderSyncVersion, version.Version).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	var blockCodec *codec.Codec
	if cfg.compressionEnabled() {
		var err error
		if blockCodec, err = codec.New(cfg.Compression, 0); err != nil {
			return nil, err
		}
		client.SetCommonHeader(HeaderBlockEncoding, EncodingZstd)
	}

	return &Client{
		client: client,
		codec:  blockCodec,
	}, nil
}

// retryable retries transport failures and gateway errors on the metadata
// and read routes. Block writes opt out per request.
func retryable(resp *req.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Close releases the block codec
func (c *Client) Close() {
	if c.codec != nil {
		c.codec.Close()
	}
}

// Health checks that the server is up
func (c *Client) Health(ctx context.Context) (resp *HealthResponse, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(healthzRoute)

	if err := handleAPIError(res, err, "health", ""); err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) ReadBlock(ctx context.Context, params *endpoint.ReadBlockRequest) (resp *endpoint.ReadBlockResponse, err error) {
	const op = "read block"
	rel := path.Join(params.Dir, params.Name)

	res, err := c.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&resp).
		Post(v1BlockRead)

	if err := handleAPIError(res, err, op, rel); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, endpoint.Errorf(endpoint.KindInternal, op, rel, "empty response")
	}

	if resp.Compressed {
		if c.codec == nil {
			return nil, endpoint.Errorf(endpoint.KindCodec, op, rel, "compressed payload without codec")
		}
		data, err := c.codec.Unpack(resp.Data, true)
		if err != nil {
			return nil, endpoint.E(endpoint.KindCodec, op, rel, err)
		}
		resp.Data, resp.Compressed = data, false
	}

	if int64(len(resp.Data)) != resp.Length || crc32.ChecksumIEEE(resp.Data) != resp.CRC32 {
		return nil, endpoint.Errorf(endpoint.KindIntegrity, op, rel, "payload of %d bytes does not match length %d and crc %08x", len(resp.Data), resp.Length, resp.CRC32)
	}

	return resp, nil
}

func (c *Client) WriteBlock(ctx context.Context, params *endpoint.WriteBlockRequest) (resp *endpoint.WriteBlockResponse, err error) {
	const op = "write block"
	rel := path.Join(params.Dir, params.Name)

	body := *params
	if c.codec != nil {
		body.Data, body.Compressed = c.codec.Pack(params.Data)
	}

	// a failed block is reported to the executor, which decides about resuming
	res, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetBody(&body).
		SetSuccessResult(&resp).
		Post(v1BlockWrite)

	if err := handleAPIError(res, err, op, rel); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, endpoint.Errorf(endpoint.KindInternal, op, rel, "empty response")
	}

	return resp, nil
}

func (c *Client) DeleteFile(ctx context.Context, params *endpoint.DeleteFileRequest) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(params).
		Post(v1FileDelete)

	return handleAPIError(res, err, "delete file", path.Join(params.Dir, params.Name))
}

func (c *Client) ListDirectory(ctx context.Context, params *endpoint.ListDirectoryRequest) (resp *metadata.DirectoryMetadata, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&resp).
		Post(v1DirList)

	if err := handleAPIError(res, err, "list directory", params.Path); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, endpoint.Errorf(endpoint.KindInternal, "list directory", params.Path, "empty response")
	}

	return resp, nil
}

func (c *Client) MakeDirectory(ctx context.Context, params *endpoint.MakeDirectoryRequest) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(params).
		Post(v1DirMake)

	return handleAPIError(res, err, "make directory", params.Path)
}

func (c *Client) DeleteDirectory(ctx context.Context, params *endpoint.DeleteDirectoryRequest) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(params).
		Post(v1DirDelete)

	return handleAPIError(res, err, "delete directory", params.Path)
}

func (c *Client) HashDirectory(ctx context.Context, params *endpoint.HashDirectoryRequest) (resp *endpoint.HashDirectoryResponse, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&resp).
		Post(v1HashQueue)

	if err := handleAPIError(res, err, "hash directory", params.Path); err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) HashStatus(ctx context.Context, id string) (resp *hasher.Status, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetSuccessResult(&resp).
		Get(v1HashStatus)

	if err := handleAPIError(res, err, "hash status", id); err != nil {
		return nil, err
	}

	return resp, nil
}
