// Package youtube provides a client for the YouTube Data API v3, used to
// validate source URLs and fetch video metadata before a job is created.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Static errors for YouTube client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is available.
	ErrAPIKeyNotSet = errors.New("youtube: API key not set (YOUTUBE_API_KEY)")
	// ErrInvalidURL is returned when a URL is not a recognizable YouTube
	// video URL.
	ErrInvalidURL = errors.New("youtube: invalid video URL")
	// ErrVideoNotFound is returned when the video does not exist or is private.
	ErrVideoNotFound = errors.New("youtube: video not found")
	// ErrUnavailable is returned when the Data API cannot be reached.
	ErrUnavailable = errors.New("youtube: data API unavailable")
)

// Video is the metadata for a single YouTube video.
type Video struct {
	ID          string
	Title       string
	Description string
	// Duration is the video length in seconds.
	Duration int
	// Thumbnails maps size names (default, medium, high, maxres) to URLs.
	Thumbnails map[string]string
	Views      int64
	Likes      int64
	Channel    string
}

// Client defines the interface for fetching video metadata.
type Client interface {
	// GetVideo fetches metadata for a video by id.
	// Returns ErrVideoNotFound if the video does not exist.
	GetVideo(ctx context.Context, videoID string) (*Video, error)
}

// HTTPClient is the Data API v3 implementation of Client.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the Data API key explicitly.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithBaseURL overrides the Data API base URL. Used in tests.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// NewClient creates a new Data API client. The key is read from the
// YOUTUBE_API_KEY environment variable unless provided via WithAPIKey.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		apiKey:     os.Getenv("YOUTUBE_API_KEY"),
		baseURL:    "https://www.googleapis.com/youtube/v3",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// videoListResponse is the Data API videos.list response, trimmed to the
// parts requested.
type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// GetVideo fetches snippet, contentDetails and statistics for a video.
func (c *HTTPClient) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	q := url.Values{}
	q.Set("id", videoID)
	q.Set("part", "snippet,contentDetails,statistics")
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("youtube: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("data API request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("video_id", videoID),
		)
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var list videoListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	// The API answers 200 with an empty items list for unknown or private ids.
	if len(list.Items) == 0 {
		return nil, ErrVideoNotFound
	}

	item := list.Items[0]
	thumbs := make(map[string]string, len(item.Snippet.Thumbnails))
	for size, thumb := range item.Snippet.Thumbnails {
		thumbs[size] = thumb.URL
	}

	return &Video{
		ID:          item.ID,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
		Duration:    parseISODuration(item.ContentDetails.Duration),
		Thumbnails:  thumbs,
		Views:       parseCount(item.Statistics.ViewCount),
		Likes:       parseCount(item.Statistics.LikeCount),
		Channel:     item.Snippet.ChannelTitle,
	}, nil
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ExtractVideoID parses a YouTube URL and returns the video id.
// Accepted forms: youtube.com/watch?v=, youtu.be/, /shorts/, /embed/.
// Only the charset is validated here; whether the id names a real video is
// the Data API's call, surfaced as ErrVideoNotFound by GetVideo.
func ExtractVideoID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/shorts/"), "/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/embed/"), "/")
		default:
			return "", ErrInvalidURL
		}
	default:
		return "", ErrInvalidURL
	}

	if !videoIDPattern.MatchString(id) {
		return "", ErrInvalidURL
	}
	return id, nil
}

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration converts an ISO-8601 duration like PT1H2M30S to seconds.
// Malformed input yields 0.
func parseISODuration(s string) int {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	return h*3600 + min*60 + sec
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
