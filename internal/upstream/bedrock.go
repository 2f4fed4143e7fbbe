package upstream

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const bedrockRuntimeService = "bedrock"

// BedrockSigner signs requests bound for the Bedrock Runtime
// `InvokeModel` API with AWS SigV4, loading credentials from the
// standard AWS credential chain. This is an additive third upstream
// protocol (route.ProtocolBedrock): its base URL is the AWS region
// endpoint, not a user-facing API key.
type BedrockSigner struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	configured  bool
}

// NewBedrockSigner loads AWS credentials from the default chain. The
// returned signer is always non-nil; IsConfigured reports whether
// credentials were actually found.
func NewBedrockSigner() *BedrockSigner {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	bs := &BedrockSigner{region: region, signer: v4.NewSigner()}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return bs
	}
	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return bs
	}

	bs.credentials = cfg.Credentials
	bs.configured = true
	return bs
}

// IsConfigured reports whether AWS credentials are available.
func (bs *BedrockSigner) IsConfigured() bool { return bs.configured }

// SignRequest signs req in place for the bedrock-runtime service. req's
// URL and Host must already target the Bedrock endpoint; body is the
// exact bytes that will be sent (needed for the payload hash).
func (bs *BedrockSigner) SignRequest(ctx context.Context, req *http.Request, body []byte) error {
	if !bs.configured {
		return fmt.Errorf("bedrock signer: no AWS credentials available")
	}
	creds, err := bs.credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("bedrock signer: retrieve credentials: %w", err)
	}
	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	if err := bs.signer.SignHTTP(ctx, creds, req, payloadHash, bedrockRuntimeService, bs.region, time.Now()); err != nil {
		return fmt.Errorf("bedrock signer: sign request: %w", err)
	}
	return nil
}

// PostSigned performs a SigV4-signed POST, the Bedrock-protocol
// counterpart to Client.Post (which is used for the anthropic/openai
// protocols, neither of which sign requests).
func (c *Client) PostSigned(ctx context.Context, signer *BedrockSigner, url string, payload []byte, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := newSignableRequest(ctx, url, payload)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	if err := signer.SignRequest(ctx, req, payload); err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	return &Result{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
}
