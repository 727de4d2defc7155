package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"fleetplane/internal/panel"
	"fleetplane/internal/types"
)

// ============================================================================
// IDENTIFIER RESOLUTION
// ============================================================================

// IdentifierKind is the classification of a caller-supplied identifier.
type IdentifierKind string

const (
	KindNumericID IdentifierKind = "id"
	KindUUID      IdentifierKind = "uuid"
	KindShortID   IdentifierKind = "short_id"
	KindInvalid   IdentifierKind = "invalid"
)

var (
	numericPattern = regexp.MustCompile(`^\d+$`)
	shortPattern   = regexp.MustCompile(`^[0-9a-f]{8}$`)
)

// ClassifyIdentifier decides by shape alone: all digits is a numeric id, a
// canonical 36-character UUID is a uuid, 8 hex characters is a short id.
func ClassifyIdentifier(input string) IdentifierKind {
	input = strings.TrimSpace(input)
	switch {
	case numericPattern.MatchString(input):
		return KindNumericID
	case len(input) == 36 && isUUID(input):
		return KindUUID
	case shortPattern.MatchString(strings.ToLower(input)):
		return KindShortID
	}
	return KindInvalid
}

func isUUID(input string) bool {
	_, err := uuid.Parse(input)
	return err == nil
}

// Resolve turns any accepted identifier shape into a fresh ServerRecord.
// It always asks the panel; a stale local map is never trusted.
func (c *Controller) Resolve(ctx context.Context, input string) (*types.ServerRecord, error) {
	input = strings.TrimSpace(input)

	switch ClassifyIdentifier(input) {
	case KindNumericID:
		return c.fetchByID(ctx, input)
	case KindUUID:
		return c.findInFleet(ctx, input, func(s types.ServerRecord) bool {
			return strings.EqualFold(s.UUID, input)
		})
	case KindShortID:
		return c.findInFleet(ctx, input, func(s types.ServerRecord) bool {
			return strings.EqualFold(s.ShortID, input)
		})
	}
	return nil, panel.ErrInvalidIdentifier(input)
}

func (c *Controller) fetchByID(ctx context.Context, id string) (*types.ServerRecord, error) {
	raw, err := c.client.Request(ctx, panel.SurfaceApplication, http.MethodGet, "/servers/"+id, nil)
	if err != nil {
		if panel.IsCode(err, panel.ErrCodeNotFound) {
			return nil, panel.ErrServerNotFound(id)
		}
		return nil, err
	}

	var obj serverObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, panel.NewError(panel.ErrCodeRequestFailed, "panel returned an unreadable server", err).
			WithContext("identifier", id)
	}

	record := mapServer(obj.Attributes)
	return &record, nil
}

// findInFleet walks the paginated admin listing; the panel has no direct
// lookup route for uuid or short id.
func (c *Controller) findInFleet(ctx context.Context, input string, match func(types.ServerRecord) bool) (*types.ServerRecord, error) {
	for page := 1; ; page++ {
		servers, pagination, err := c.List(ctx, ListFilter{Page: page, PerPage: 100})
		if err != nil {
			return nil, err
		}
		for i := range servers {
			if match(servers[i]) {
				return &servers[i], nil
			}
		}
		if page >= pagination.TotalPages || pagination.TotalPages == 0 {
			return nil, panel.ErrServerNotFound(input)
		}
	}
}

// DescribeIdentifier is a display helper for the command front end.
func DescribeIdentifier(input string) string {
	kind := ClassifyIdentifier(input)
	if kind == KindInvalid {
		return fmt.Sprintf("%q is not a recognized server identifier", input)
	}
	return fmt.Sprintf("%q (%s)", input, kind)
}
