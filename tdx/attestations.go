// Package tdx produces and checks TEE attestations that bind a challenge
// server to the challenge it serves.
package tdx

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-tdx-guest/abi"
	"github.com/google/go-tdx-guest/client"
	proto_checkconfig "github.com/google/go-tdx-guest/proto/checkconfig"
	proto "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/validate"
	"github.com/google/go-tdx-guest/verify"
)

// ReportDataSize is the size of the user data embedded in a quote.
const ReportDataSize = 64

// Measurements maps register index (0 for MRTD, 1-4 for RTMR0-3) to value.
type Measurements map[int][]byte

// Match returns an error naming the first register in expected whose value
// differs from m. Registers absent from expected are not checked.
func (m Measurements) Match(expected Measurements) error {
	for reg, want := range expected {
		got, ok := m[reg]
		if !ok {
			return fmt.Errorf("measurement %d missing from quote", reg)
		}
		if !bytes.Equal(got, want) {
			return fmt.Errorf("measurement %d is %x, expected %x", reg, got, want)
		}
	}
	return nil
}

// ParseMeasurements decodes hex register values keyed by index.
func ParseMeasurements(in map[int]string) (Measurements, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(Measurements, len(in))
	for reg, v := range in {
		if reg < 0 || reg > 4 {
			return nil, fmt.Errorf("measurement register %d out of range", reg)
		}
		b, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("measurement %d: %w", reg, err)
		}
		out[reg] = b
	}
	return out, nil
}

// Provider generates and verifies attestations over report data.
type Provider interface {
	AttestationType() string
	Attest(ctx context.Context, reportData [ReportDataSize]byte) ([]byte, error)
	Verify(quote []byte, expected [ReportDataSize]byte) (Measurements, error)
}

// NewProvider returns the provider named by kind: "dummy", "tdx", or a
// remote quote service URL prefixed with "remote:".
func NewProvider(kind string, timeout time.Duration) (Provider, error) {
	switch kind {
	case "dummy":
		return &DummyProvider{}, nil
	case "tdx":
		return &TDXProvider{}, nil
	}
	if url, ok := strings.CutPrefix(kind, "remote:"); ok && url != "" {
		return &RemoteDCAPProvider{URL: url, Timeout: timeout}, nil
	}
	return nil, fmt.Errorf("unknown attestation provider %q", kind)
}

// TDXProvider uses the local TDX configfs quote provider.
type TDXProvider struct{}

func (p *TDXProvider) AttestationType() string {
	return "dcap-tdx"
}

func (p *TDXProvider) Attest(_ context.Context, reportData [ReportDataSize]byte) ([]byte, error) {
	qp := &client.LinuxConfigFsQuoteProvider{}
	return qp.GetRawQuote(reportData)
}

func (p *TDXProvider) Verify(quote []byte, expected [ReportDataSize]byte) (Measurements, error) {
	return VerifyDCAP(quote, expected[:])
}

// RemoteDCAPProvider fetches quotes from a remote attestation service and
// verifies them locally.
type RemoteDCAPProvider struct {
	URL     string
	Timeout time.Duration
}

func (p *RemoteDCAPProvider) AttestationType() string {
	return "dcap-tdx"
}

func (p *RemoteDCAPProvider) Attest(ctx context.Context, reportData [ReportDataSize]byte) ([]byte, error) {
	url := fmt.Sprintf("%s/attest/%s", p.URL, hex.EncodeToString(reportData[:]))

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	quote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return quote, nil
}

func (p *RemoteDCAPProvider) Verify(quote []byte, expected [ReportDataSize]byte) (Measurements, error) {
	return VerifyDCAP(quote, expected[:])
}

// Intel's QE vendor ID and the TD attributes of a production guest.
var (
	qeVendorID   = mustDecodeHex("939a7233f79c4ca9940a0db3957f0607")
	tdAttributes = mustDecodeHex("0000001000000000")
)

func mustDecodeHex(data string) []byte {
	decoded, err := hex.DecodeString(data)
	if err != nil {
		panic(err.Error())
	}
	return decoded
}

// VerifyDCAP validates a TDX DCAP quote against the expected report data.
func VerifyDCAP(quote []byte, expectedReportData []byte) (Measurements, error) {
	anyQuote, err := abi.QuoteToProto(quote)
	if err != nil {
		return nil, fmt.Errorf("could not convert raw bytes to QuoteV4: %w", err)
	}
	q, ok := anyQuote.(*proto.QuoteV4)
	if !ok {
		return nil, errors.New("quote is not a QuoteV4")
	}

	config := &proto_checkconfig.Config{
		RootOfTrust: &proto_checkconfig.RootOfTrust{
			CheckCrl:      true,
			GetCollateral: true,
		},
		Policy: &proto_checkconfig.Policy{
			HeaderPolicy: &proto_checkconfig.HeaderPolicy{
				QeVendorId: qeVendorID,
			},
			TdQuoteBodyPolicy: &proto_checkconfig.TDQuoteBodyPolicy{
				TdAttributes: tdAttributes,
				ReportData:   expectedReportData,
			},
		},
	}

	options, err := verify.RootOfTrustToOptions(config.RootOfTrust)
	if err != nil {
		return nil, fmt.Errorf("converting root of trust to options: %w", err)
	}
	if err := verify.TdxQuote(q, options); err != nil {
		return nil, fmt.Errorf("verifying TDX quote: %w", err)
	}

	opts, err := validate.PolicyToOptions(config.Policy)
	if err != nil {
		return nil, fmt.Errorf("converting policy to options: %w", err)
	}
	if err := validate.TdxQuote(q, opts); err != nil {
		return nil, fmt.Errorf("validating TDX quote: %w", err)
	}

	body := q.GetTdQuoteBody()
	return Measurements{
		0: body.MrTd,
		1: body.Rtmrs[0],
		2: body.Rtmrs[1],
		3: body.Rtmrs[2],
		4: body.Rtmrs[3],
	}, nil
}

// DummyProvider echoes the report data as the quote. For tests and local
// demos only.
type DummyProvider struct{}

func (p *DummyProvider) AttestationType() string {
	return "dummy-tdx"
}

func (p *DummyProvider) Attest(_ context.Context, reportData [ReportDataSize]byte) ([]byte, error) {
	return bytes.Clone(reportData[:]), nil
}

func (p *DummyProvider) Verify(quote []byte, expected [ReportDataSize]byte) (Measurements, error) {
	if !bytes.Equal(quote, expected[:]) {
		return nil, errors.New("attestation mismatch")
	}
	return Measurements{0: {0}, 1: {1}, 2: {2}, 3: {3}, 4: {4}}, nil
}
