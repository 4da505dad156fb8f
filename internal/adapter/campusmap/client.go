package campusmap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

// Client resolves campus building names to coordinates through the
// university building-info API. Lookups are cached: the building list
// changes on the order of years, queries on the order of seconds.
type Client struct {
	BaseURL string
	http    *http.Client

	mu       sync.Mutex
	mapping  map[string]buildingInfo
	loadedAt time.Time
	cache    *lru.Cache[string, *domain.Building]
}

const mappingTTL = 24 * time.Hour

type buildingInfo struct {
	Name   string `json:"name"`
	NameEn string `json:"name_en"`
	Lat    string `json:"lat"`
	Lon    string `json:"lon"`
}

type buildingInfoResponse struct {
	Data []buildingInfo `json:"data"`
}

// NewClient constructs a campus map client. cacheSize bounds the
// per-name resolution cache.
func NewClient(baseURL string, timeout time.Duration, cacheSize int, client *http.Client) (*Client, error) {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	cache, err := lru.New[string, *domain.Building](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinate cache: %w", err)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		cache:   cache,
	}, nil
}

var (
	floorSuffixRe = regexp.MustCompile(`\s*(B?\d+樓|B\d+).*$`)
	parenRe       = regexp.MustCompile(`\s*[\(（][^\)）]*[\)）]`)
)

// ExtractBuildingName strips floor and room suffixes from a location
// string, e.g. "行政大樓 1樓 106室" -> "行政大樓".
func ExtractBuildingName(locationText string) string {
	name := floorSuffixRe.ReplaceAllString(locationText, "")
	name = parenRe.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// Locate resolves a building name to coordinates, with fuzzy matching:
// the stored name may carry annotations the passage text lacks, and vice
// versa. Returns nil, nil for unknown buildings.
func (c *Client) Locate(ctx context.Context, buildingName string) (*domain.Building, error) {
	name := ExtractBuildingName(buildingName)
	if name == "" {
		return nil, nil
	}

	if hit, ok := c.cache.Get(name); ok {
		return hit, nil
	}

	mapping, err := c.nameMapping(ctx)
	if err != nil {
		return nil, err
	}

	info, ok := mapping[name]
	if !ok {
		for candidate, b := range mapping {
			if strings.Contains(candidate, name) || strings.Contains(name, candidate) {
				info = b
				ok = true
				break
			}
		}
	}
	if !ok {
		c.cache.Add(name, nil)
		return nil, nil
	}

	lat, _ := strconv.ParseFloat(info.Lat, 64)
	lon, _ := strconv.ParseFloat(info.Lon, 64)
	building := &domain.Building{
		Name:   info.Name,
		NameEn: info.NameEn,
		Lat:    lat,
		Lon:    lon,
	}
	c.cache.Add(name, building)
	return building, nil
}

// nameMapping lazily loads and periodically refreshes the full building
// list, indexed by both Chinese and English names.
func (c *Client) nameMapping(ctx context.Context) (map[string]buildingInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mapping != nil && time.Since(c.loadedAt) < mappingTTL {
		return c.mapping, nil
	}

	u, err := url.Parse(c.BaseURL + "/ntuga/public/buildinfo.htm")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("action", "getCentroidByBuildId")
	q.Set("proj", "EPSG:4326")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A stale mapping beats no mapping for a campus that rarely
		// changes shape.
		if c.mapping != nil {
			return c.mapping, nil
		}
		return nil, fmt.Errorf("building info request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		if c.mapping != nil {
			return c.mapping, nil
		}
		return nil, fmt.Errorf("building info returned status: %d", resp.StatusCode)
	}

	var infoResp buildingInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&infoResp); err != nil {
		return nil, fmt.Errorf("failed to decode building info: %w", err)
	}

	mapping := make(map[string]buildingInfo, len(infoResp.Data)*2)
	for _, b := range infoResp.Data {
		if b.Name != "" {
			mapping[b.Name] = b
			if base := parenRe.ReplaceAllString(b.Name, ""); base != b.Name {
				mapping[strings.TrimSpace(base)] = b
			}
		}
		if b.NameEn != "" {
			mapping[b.NameEn] = b
		}
	}
	c.mapping = mapping
	c.loadedAt = time.Now()
	return mapping, nil
}

var _ domain.BuildingLocator = (*Client)(nil)
