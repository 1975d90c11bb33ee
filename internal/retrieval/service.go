// Package retrieval answers user queries against the corpus index,
// enforcing access control by compiling the caller's profile into the
// search filter.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/accessfilter"
	"github.com/fyrsmithlabs/corpusd/internal/profile"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

var tracer = otel.Tracer("corpusd/retrieval")

// DefaultTopK is how many chunks a query returns when the caller does not
// say.
const DefaultTopK = 5

// ErrEmptyQuery indicates a blank query string.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Service executes access-filtered retrieval.
type Service struct {
	identities profile.Identities
	store      vectorstore.Store
	logger     *zap.Logger
}

// NewService creates a retrieval service.
func NewService(identities profile.Identities, store vectorstore.Store, logger *zap.Logger) (*Service, error) {
	if identities == nil || store == nil {
		return nil, fmt.Errorf("identities and store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{identities: identities, store: store, logger: logger}, nil
}

// Query retrieves up to k chunks visible to userID. An unknown user or a
// failed profile lookup yields an empty result, never an unfiltered one:
// the nil profile compiles to a match-nothing predicate, so the failure
// mode is silence.
func (s *Service) Query(ctx context.Context, userID, query string, k int) ([]vectorstore.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Query")
	defer span.End()
	span.SetAttributes(attribute.String("query.user", userID), attribute.Int("query.k", k))

	if query == "" {
		span.SetStatus(codes.Error, "empty query")
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = DefaultTopK
	}

	p, err := s.identities.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn("profile lookup failed, returning empty results",
			zap.String("user", userID), zap.Error(err))
		p = nil
	}

	pred := accessfilter.Compile(p)
	if accessfilter.IsNone(pred) {
		span.SetStatus(codes.Ok, "")
		return nil, nil
	}

	results, err := s.store.Query(ctx, query, pred, k)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching index: %w", err)
	}
	span.SetAttributes(attribute.Int("query.results", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}
