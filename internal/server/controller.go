package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"fleetplane/internal/panel"
	"fleetplane/internal/types"
)

// ============================================================================
// SERVER CONTROLLER
// ============================================================================

// Controller handles fleet enumeration and per-server control. All state
// lives on the remote panel; every method re-fetches and nothing is cached.
// Errors from the panel client propagate untouched apart from operation
// context; retries are the caller's concern.
type Controller struct {
	client *panel.Client
}

func NewController(client *panel.Client) *Controller {
	return &Controller{client: client}
}

// ListFilter narrows a fleet listing. Zero values mean "panel defaults".
type ListFilter struct {
	Page       int
	PerPage    int
	NameSearch string
	OwnerUser  int64
}

// List enumerates servers on the administrative surface. Pagination fields
// are passed through from the panel, never computed locally.
func (c *Controller) List(ctx context.Context, filter ListFilter) ([]types.ServerRecord, types.Pagination, error) {
	q := url.Values{}
	if filter.Page > 0 {
		q.Set("page", fmt.Sprintf("%d", filter.Page))
	}
	if filter.PerPage > 0 {
		q.Set("per_page", fmt.Sprintf("%d", filter.PerPage))
	}
	if filter.NameSearch != "" {
		q.Set("filter[name]", filter.NameSearch)
	}
	if filter.OwnerUser > 0 {
		q.Set("filter[user]", fmt.Sprintf("%d", filter.OwnerUser))
	}

	path := "/servers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	raw, err := c.client.Request(ctx, panel.SurfaceApplication, http.MethodGet, path, nil)
	if err != nil {
		return nil, types.Pagination{}, err
	}

	var resp serverListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, types.Pagination{}, panel.NewError(panel.ErrCodeRequestFailed, "panel returned an unreadable server list", err)
	}

	servers := make([]types.ServerRecord, 0, len(resp.Data))
	for _, obj := range resp.Data {
		servers = append(servers, mapServer(obj.Attributes))
	}

	p := resp.Meta.Pagination
	return servers, types.Pagination{
		Current:    p.CurrentPage,
		PerPage:    p.PerPage,
		PageCount:  p.Count,
		TotalPages: p.TotalPages,
		TotalCount: p.Total,
	}, nil
}

// ListAll walks every page of the fleet. Used by scheduled sweeps.
func (c *Controller) ListAll(ctx context.Context) ([]types.ServerRecord, error) {
	var all []types.ServerRecord
	for page := 1; ; page++ {
		servers, pagination, err := c.List(ctx, ListFilter{Page: page, PerPage: 100})
		if err != nil {
			return nil, err
		}
		all = append(all, servers...)
		if page >= pagination.TotalPages || pagination.TotalPages == 0 {
			return all, nil
		}
	}
}

// Resources fetches a fresh telemetry snapshot from the per-tenant surface.
func (c *Controller) Resources(ctx context.Context, serverUUID string) (*types.ResourceSnapshot, error) {
	raw, err := c.client.Request(ctx, panel.SurfaceClient, http.MethodGet,
		fmt.Sprintf("/servers/%s/resources", shortID(serverUUID)), nil)
	if err != nil {
		return nil, attachServer(err, serverUUID)
	}

	var obj statsObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, panel.NewError(panel.ErrCodeRequestFailed, "panel returned unreadable telemetry", err).
			WithContext("server", serverUUID)
	}

	snapshot := mapSnapshot(serverUUID, obj.Attributes)
	return &snapshot, nil
}

// Power signals. Success means the panel accepted the signal, not that the
// transition finished; callers poll Resources to observe the outcome.

func (c *Controller) Start(ctx context.Context, serverUUID string) error {
	return c.power(ctx, serverUUID, "start")
}

func (c *Controller) Stop(ctx context.Context, serverUUID string) error {
	return c.power(ctx, serverUUID, "stop")
}

func (c *Controller) Restart(ctx context.Context, serverUUID string) error {
	return c.power(ctx, serverUUID, "restart")
}

func (c *Controller) Kill(ctx context.Context, serverUUID string) error {
	return c.power(ctx, serverUUID, "kill")
}

func (c *Controller) power(ctx context.Context, serverUUID, signal string) error {
	body := map[string]string{"signal": signal}
	_, err := c.client.Request(ctx, panel.SurfaceClient, http.MethodPost,
		fmt.Sprintf("/servers/%s/power", shortID(serverUUID)), body)
	return attachServer(err, serverUUID)
}

// SendCommand pushes one console line. The text is opaque; no validation.
func (c *Controller) SendCommand(ctx context.Context, serverUUID, command string) error {
	body := map[string]string{"command": command}
	_, err := c.client.Request(ctx, panel.SurfaceClient, http.MethodPost,
		fmt.Sprintf("/servers/%s/command", shortID(serverUUID)), body)
	return attachServer(err, serverUUID)
}

// shortID derives the per-tenant path identifier from a full UUID. Short
// ids pass through unchanged.
func shortID(identifier string) string {
	if len(identifier) > 8 {
		return identifier[:8]
	}
	return identifier
}

// attachServer adds operation context without re-wrapping the taxonomy.
func attachServer(err error, serverUUID string) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*panel.APIError); ok {
		return apiErr.WithContext("server", serverUUID)
	}
	return err
}
