package signing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

const (
	ServiceTranscribe = "transcribe"
	StreamPath        = "/stream-transcription-websocket"
	DefaultExpires    = 5 * time.Minute
)

// emptyPayloadHash is hex(sha256("")), the body hash of a websocket upgrade
var emptyPayloadHash = func() string {
	sum := sha256.Sum256(nil)
	return hex.EncodeToString(sum[:])
}()

// Credentials are the secret material the signature is derived from
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Params describes the connection being signed
type Params struct {
	Region  string
	Scheme  string     // ws or wss, defaults to wss
	Service string     // defaults to ServiceTranscribe
	Host    string     // defaults to StreamHost(Region)
	Path    string     // defaults to StreamPath
	Query   url.Values // connection parameters, e.g. language-code
	Expires time.Duration
}

// Presigned is the result of signing a connection
type Presigned struct {
	URL             string
	Signature       string
	CredentialScope string
	AmzDate         string
}

// StreamHost returns the streaming endpoint host for a region
func StreamHost(region string) string {
	return fmt.Sprintf("transcribestreaming.%s.amazonaws.com:8443", region)
}

// StreamQuery builds the recognition connection parameters
func StreamQuery(languageCode string, sampleRate int, vocabularyName string) url.Values {
	q := url.Values{}
	q.Set("language-code", languageCode)
	q.Set("media-encoding", "pcm")
	q.Set("sample-rate", strconv.Itoa(sampleRate))
	if vocabularyName != "" {
		q.Set("vocabulary-name", vocabularyName)
	}
	return q
}

// Presign builds a SigV4 query-signed websocket URL. It is a pure function of
// its inputs: the same credentials, time and params always produce the same
// signature. The request is signed as https and handed back with the
// websocket scheme; the scheme is not part of the signature.
func Presign(creds Credentials, t time.Time, p Params) (*Presigned, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, errors.New("access key id and secret access key are required")
	}
	if p.Region == "" {
		return nil, errors.New("region is required")
	}

	service := p.Service
	if service == "" {
		service = ServiceTranscribe
	}
	host := p.Host
	if host == "" {
		host = StreamHost(p.Region)
	}
	path := p.Path
	if path == "" {
		path = StreamPath
	}
	scheme := p.Scheme
	if scheme == "" {
		scheme = "wss"
	}
	expires := p.Expires
	if expires <= 0 {
		expires = DefaultExpires
	}

	query := url.Values{}
	for k, vs := range p.Query {
		query[k] = append([]string(nil), vs...)
	}
	query.Set("X-Amz-Expires", strconv.Itoa(int(expires/time.Second)))

	req, err := http.NewRequest(http.MethodGet, "https://"+host+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request to sign: %w", err)
	}

	signedURI, _, err := v4.NewSigner().PresignHTTP(context.Background(), aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, req, emptyPayloadHash, service, p.Region, t.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to presign: %w", err)
	}

	u, err := url.Parse(signedURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse presigned url: %w", err)
	}
	u.Scheme = scheme

	signed := u.Query()
	credential := signed.Get("X-Amz-Credential")
	scope := strings.TrimPrefix(credential, creds.AccessKeyID+"/")

	return &Presigned{
		URL:             u.String(),
		Signature:       signed.Get("X-Amz-Signature"),
		CredentialScope: scope,
		AmzDate:         signed.Get("X-Amz-Date"),
	}, nil
}
