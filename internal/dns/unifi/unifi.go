package unifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns"
)

const (
	apiPrefix = "/proxy/network/integration/v1"

	// maxPages stops a listing against a server that ignores offset.
	maxPages = 1000

	maxErrorBody = 1024
)

func init() {
	dns.Register("unifi", func(log logr.Logger, conn config.Connection) (dns.Directory, error) {
		return New(log, conn)
	})
}

// Client implements dns.Directory for the UniFi Network integration API.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	client   *http.Client
	log      logr.Logger
}

var _ dns.Directory = (*Client)(nil)

// New creates a UniFi client from an explicit connection configuration.
// Host may be a bare hostname (https is assumed) or a full base URL.
func New(log logr.Logger, conn config.Connection) (*Client, error) {
	conn = conn.WithDefaults()
	if err := conn.Validate(); err != nil {
		return nil, fmt.Errorf("unifi: %w", err)
	}

	baseURL := conn.Host
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("unifi: invalid host %q: %w", conn.Host, err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if conn.InsecureSkipVerify() {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   conn.APIKey,
		pageSize: conn.PageSize,
		client:   &http.Client{Transport: transport, Timeout: conn.Timeout},
		log:      log,
	}, nil
}

// do executes one request against the integration API and decodes a 2xx
// response body into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	terr := func(err error) error {
		return &dns.TransportError{Op: op, Method: method, Path: path, Err: err}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return terr(fmt.Errorf("marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return terr(fmt.Errorf("build request: %w", err))
	}

	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return terr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &dns.TransportError{
			Op:         op,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return terr(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// page is the envelope every listing endpoint returns. Offset and
// TotalCount are optional; some controllers only send data.
type page[T any] struct {
	Offset     *int `json:"offset"`
	TotalCount *int `json:"totalCount"`
	Data       *[]T `json:"data"`
}

var errMissingData = errors.New("response has no data array")

// listAll follows offset pagination until the full collection has been read.
// key identifies an item; an empty key is never treated as a repeat. A page
// that echoes a different offset than requested, or that starts with an item
// already read, means the server ignores offset and the listing is complete.
func listAll[T any](ctx context.Context, c *Client, op, path string, key func(T) string) ([]T, error) {
	var all []T
	seen := map[string]struct{}{}
	offset := 0
	for i := 0; i < maxPages; i++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.pageSize))
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}
		reqPath := path + "?" + q.Encode()

		var pg page[T]
		if err := c.do(ctx, op, http.MethodGet, reqPath, nil, &pg); err != nil {
			return nil, err
		}
		if pg.Data == nil {
			return nil, &dns.TransportError{Op: op, Method: http.MethodGet, Path: reqPath, Err: errMissingData}
		}

		items := *pg.Data
		if offset > 0 {
			if pg.Offset != nil && *pg.Offset != offset {
				c.log.V(1).Info("server ignored offset, ending listing", "op", op, "requested", offset, "got", *pg.Offset)
				return all, nil
			}
			if len(items) > 0 {
				if _, dup := seen[key(items[0])]; dup {
					c.log.V(1).Info("page repeats an earlier item, ending listing", "op", op, "offset", offset)
					return all, nil
				}
			}
		}
		for _, item := range items {
			if k := key(item); k != "" {
				seen[k] = struct{}{}
			}
		}
		all = append(all, items...)
		offset += len(items)

		switch {
		case len(items) == 0:
			return all, nil
		case pg.TotalCount != nil && offset >= *pg.TotalCount:
			return all, nil
		case pg.TotalCount == nil && len(items) < c.pageSize:
			return all, nil
		}
		c.log.V(1).Info("fetching next page", "op", op, "offset", offset)
	}
	return nil, &dns.TransportError{
		Op:     op,
		Method: http.MethodGet,
		Path:   path,
		Err:    fmt.Errorf("pagination did not finish after %d pages", maxPages),
	}
}

type siteDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListSites returns every site on the controller.
func (c *Client) ListSites(ctx context.Context) ([]dns.Site, error) {
	path := apiPrefix + "/sites"
	rows, err := listAll(ctx, c, "listSites", path, func(s siteDTO) string { return s.ID })
	if err != nil {
		return nil, err
	}

	sites := make([]dns.Site, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			return nil, &dns.TransportError{
				Op:     "listSites",
				Method: http.MethodGet,
				Path:   path,
				Err:    fmt.Errorf("site %q has no id", row.Name),
			}
		}
		sites = append(sites, dns.Site{ID: row.ID, Name: row.Name})
	}
	c.log.V(1).Info("listed sites", "count", len(sites))
	return sites, nil
}

// ListPolicies returns every DNS policy of a site.
func (c *Client) ListPolicies(ctx context.Context, siteID string) ([]dns.Policy, error) {
	rows, err := listAll(ctx, c, "listPolicies", policiesPath(siteID), func(p policyDTO) string { return p.ID })
	if err != nil {
		return nil, err
	}

	policies := make([]dns.Policy, 0, len(rows))
	for _, row := range rows {
		policies = append(policies, row.toPolicy())
	}
	c.log.V(1).Info("listed DNS policies", "site", siteID, "count", len(policies))
	return policies, nil
}

// CreatePolicy adds a new DNS policy and returns it with its assigned id.
func (c *Client) CreatePolicy(ctx context.Context, siteID string, policy dns.Policy) (dns.Policy, error) {
	c.log.Info("creating DNS policy", "site", siteID, "domain", policy.Domain, "type", policy.Type)

	path := policiesPath(siteID)
	var created policyDTO
	if err := c.do(ctx, "createPolicy", http.MethodPost, path, newPolicyBody(policy), &created); err != nil {
		return dns.Policy{}, err
	}
	if created.ID == "" {
		return dns.Policy{}, &dns.TransportError{
			Op:     "createPolicy",
			Method: http.MethodPost,
			Path:   path,
			Err:    errors.New("response has no id"),
		}
	}

	c.log.Info("DNS policy created", "id", created.ID)
	return created.toPolicy(), nil
}

// UpdatePolicy replaces the policy with the given id.
func (c *Client) UpdatePolicy(ctx context.Context, siteID, id string, policy dns.Policy) (dns.Policy, error) {
	c.log.Info("updating DNS policy", "site", siteID, "id", id, "domain", policy.Domain)

	var updated policyDTO
	if err := c.do(ctx, "updatePolicy", http.MethodPut, policyPath(siteID, id), newPolicyBody(policy), &updated); err != nil {
		return dns.Policy{}, err
	}

	result := updated.toPolicy()
	if result.ID == "" {
		result.ID = id
	}
	c.log.Info("DNS policy updated", "id", result.ID)
	return result, nil
}

// DeletePolicy removes the policy with the given id.
func (c *Client) DeletePolicy(ctx context.Context, siteID, id string) (bool, error) {
	c.log.Info("deleting DNS policy", "site", siteID, "id", id)

	if err := c.do(ctx, "deletePolicy", http.MethodDelete, policyPath(siteID, id), nil, nil); err != nil {
		return false, err
	}

	c.log.Info("DNS policy deleted", "id", id)
	return true, nil
}

func policiesPath(siteID string) string {
	return fmt.Sprintf("%s/sites/%s/dns/policies", apiPrefix, url.PathEscape(siteID))
}

func policyPath(siteID, id string) string {
	return policiesPath(siteID) + "/" + url.PathEscape(id)
}
