package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/iq360/internal/leads"
	"github.com/MrWong99/iq360/internal/observe"
	"github.com/MrWong99/iq360/pkg/provider/llm"
)

// Analysis kinds, used as metric and span labels.
const (
	KindProperty = "property"
	KindComps    = "comps"
	KindContract = "contract"
)

// MaxImageBytes caps the photo size accepted by AnalyzeProperty.
const MaxImageBytes = 10 << 20

// Service runs analyses against the configured models. A Service is safe for
// concurrent use.
type Service struct {
	vision    llm.Provider
	text      llm.Provider
	contracts llm.Provider
	cache     *HashCache
	metrics   *observe.Metrics
	now       func() time.Time
}

// Option configures a [Service].
type Option func(*Service)

// WithTextProvider sets the model used for market comps. Defaults to the
// vision provider.
func WithTextProvider(p llm.Provider) Option {
	return func(s *Service) { s.text = p }
}

// WithContractProvider sets the model used for contract drafting. Defaults
// to the text provider.
func WithContractProvider(p llm.Provider) Option {
	return func(s *Service) { s.contracts = p }
}

// WithCache enables the perceptual-hash report cache.
func WithCache(c *HashCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics overrides the default metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService returns a Service whose property analyses go to vision.
func NewService(vision llm.Provider, opts ...Option) *Service {
	s := &Service{vision: vision, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.text == nil {
		s.text = s.vision
	}
	if s.contracts == nil {
		s.contracts = s.text
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// observeCall wraps one analysis call in a span and a latency sample.
func (s *Service) observeCall(ctx context.Context, kind string, fn func(ctx context.Context, span trace.Span) error) error {
	ctx, span := observe.StartSpan(ctx, "analysis."+kind, trace.WithAttributes(attribute.String("analysis.kind", kind)))
	defer span.End()

	start := s.now()
	err := fn(ctx, span)
	status := "ok"
	if err != nil {
		status = "error"
		observe.FailSpan(span, err)
		observe.Logger(ctx).Warn("analysis failed", "kind", kind, "err", err)
	}
	s.metrics.RecordAnalysis(ctx, kind, status, s.now().Sub(start).Seconds())
	return err
}

// AnalyzeProperty assesses the condition of the property in image. The
// image is hashed first; a near-duplicate of an earlier photo returns the
// earlier report without a model call. The bool result reports a cache hit.
//
// An empty mimeType is sniffed from the bytes.
func (s *Service) AnalyzeProperty(ctx context.Context, image []byte, mimeType, address string) (PropertyReport, bool, error) {
	if err := checkImage(image); err != nil {
		return PropertyReport{}, false, err
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	var (
		report PropertyReport
		hit    bool
	)
	err := s.observeCall(ctx, KindProperty, func(ctx context.Context, span trace.Span) error {
		hash, hashErr := uint64(0), error(nil)
		if s.cache != nil {
			hash, hashErr = imageHash(image)
			if hashErr != nil {
				observe.Logger(ctx).Debug("image not hashable, cache bypassed", "err", hashErr)
			} else if r, ok := s.cache.Lookup(ctx, hash); ok {
				s.metrics.AnalysisCacheHits.Add(ctx, 1)
				span.SetAttributes(attribute.Bool("analysis.cache_hit", true))
				report, hit = r, true
				return nil
			}
		}

		resp, err := s.vision.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{{
				Role:    llm.RoleUser,
				Content: propertyPrompt,
				Images:  []llm.Image{{Data: image, MIMEType: mimeType}},
			}},
			JSON: true,
		})
		if err != nil {
			return fmt.Errorf("analysis: vision: %w", err)
		}
		report, err = decodeReport(resp.Content)
		if err != nil {
			return err
		}

		if s.cache != nil && hashErr == nil {
			if err := s.cache.Put(ctx, hash, address, report); err != nil {
				observe.Logger(ctx).Warn("analysis cache store failed", "err", err)
			}
		}
		return nil
	})
	if err != nil {
		return PropertyReport{}, false, err
	}
	return report, hit, nil
}

// MarketComps summarises the market around address and lists the sources
// the model cited.
func (s *Service) MarketComps(ctx context.Context, address string) (MarketReport, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return MarketReport{}, ErrEmptyAddress
	}

	var report MarketReport
	err := s.observeCall(ctx, KindComps, func(ctx context.Context, _ trace.Span) error {
		resp, err := s.text.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(compsPrompt, address)}},
		})
		if err != nil {
			return fmt.Errorf("analysis: comps: %w", err)
		}
		report = MarketReport{
			Summary: strings.TrimSpace(resp.Content),
			Sources: extractSources(resp.Content),
		}
		return nil
	})
	return report, err
}

// GenerateContract drafts an assignment of contract for lead.
func (s *Service) GenerateContract(ctx context.Context, lead leads.Lead) (string, error) {
	body, err := json.Marshal(lead)
	if err != nil {
		return "", fmt.Errorf("analysis: encode lead: %w", err)
	}

	var text string
	err = s.observeCall(ctx, KindContract, func(ctx context.Context, span trace.Span) error {
		span.SetAttributes(attribute.String("lead.id", lead.ID))
		resp, err := s.contracts.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(contractPrompt, body)}},
		})
		if err != nil {
			return fmt.Errorf("analysis: contract: %w", err)
		}
		text = strings.TrimSpace(resp.Content)
		if text == "" {
			return malformed(errors.New("empty contract"))
		}
		return nil
	})
	return text, err
}

// Assess runs the property analysis and the comps lookup concurrently. The
// first failure cancels the other call and is returned.
func (s *Service) Assess(ctx context.Context, image []byte, mimeType, address string) (Assessment, error) {
	if err := checkImage(image); err != nil {
		return Assessment{}, err
	}
	var a Assessment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, hit, err := s.AnalyzeProperty(gctx, image, mimeType, address)
		a.Property, a.Cached = r, hit
		return err
	})
	g.Go(func() error {
		m, err := s.MarketComps(gctx, address)
		a.Market = m
		return err
	})
	if err := g.Wait(); err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func checkImage(image []byte) error {
	switch {
	case len(image) == 0:
		return ErrEmptyImage
	case len(image) > MaxImageBytes:
		return fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, len(image), MaxImageBytes)
	}
	return nil
}
