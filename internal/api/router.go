package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agrohub/internal/cache"
	"agrohub/internal/catalog"
	"agrohub/internal/collector"
	"agrohub/internal/digest"
	"agrohub/internal/processor"
)

// Server exposes the cached snapshots over HTTP. It owns no collection
// logic: handlers only read the stores and, on request, ask them to
// refresh.
type Server struct {
	news    *cache.Store[processor.Snapshot]
	quotes  *cache.Store[[]collector.Quote]
	cat     *catalog.Catalog
	loc     *time.Location
	builder *digest.Builder
	mailer  digest.Mailer
}

func NewServer(news *cache.Store[processor.Snapshot], quotes *cache.Store[[]collector.Quote], cat *catalog.Catalog, loc *time.Location, builder *digest.Builder, mailer digest.Mailer) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		news:    news,
		quotes:  quotes,
		cat:     cat,
		loc:     loc,
		builder: builder,
		mailer:  mailer,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/news", s.listNews)
		api.GET("/quotes", s.listQuotes)
		api.GET("/digest", s.previewDigest)
		api.POST("/digest", s.sendDigest)
	}
}

type articleView struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Summary        string `json:"summary"`
	ImageURL       string `json:"image_url"`
	PublishedAt    string `json:"published_at"`
	PublishedLabel string `json:"published_label"`
	Source         string `json:"source"`
	TopicKey       string `json:"topic_key"`
	TopicLabel     string `json:"topic_label"`
	Color          string `json:"color"`
}

type quoteView struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Change string `json:"change"`
	Unit   string `json:"unit"`
	Source string `json:"source"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listNews(c *gin.Context) {
	if c.Query("refresh") == "true" {
		s.news.RequestRefresh(true)
	}

	snap, generatedAt, err := s.news.Get(c.Request.Context())
	if err != nil {
		s.unavailable(c, err)
		return
	}

	articles := make([]articleView, 0, len(snap.Articles))
	for _, art := range snap.Articles {
		articles = append(articles, s.articleView(art))
	}

	c.JSON(http.StatusOK, gin.H{
		"generated_at": generatedAt.In(s.loc).Format(time.RFC3339),
		"degraded":     snap.Degraded,
		"articles":     articles,
	})
}

func (s *Server) listQuotes(c *gin.Context) {
	if c.Query("refresh") == "true" {
		s.quotes.RequestRefresh(true)
	}

	quotes, generatedAt, err := s.quotes.Get(c.Request.Context())
	if err != nil {
		s.unavailable(c, err)
		return
	}

	views := make([]quoteView, 0, len(quotes))
	for _, q := range quotes {
		views = append(views, quoteView{
			Key:    q.Key,
			Label:  q.Label,
			Value:  q.Value,
			Change: q.Change,
			Unit:   q.Unit,
			Source: q.Source,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"generated_at": generatedAt.In(s.loc).Format(time.RFC3339),
		"quotes":       views,
	})
}

func (s *Server) previewDigest(c *gin.Context) {
	body, _, ok := s.renderDigest(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

func (s *Server) sendDigest(c *gin.Context) {
	if s.mailer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "smtp_not_configured",
			"message": "mail delivery is not configured",
		})
		return
	}

	// Kick a forced refresh first so the next bulletin reflects the
	// portals as of now; this send still uses the current snapshot.
	s.news.RequestRefresh(true)
	s.quotes.RequestRefresh(true)

	body, generatedAt, ok := s.renderDigest(c)
	if !ok {
		return
	}

	if err := s.mailer.Send(s.builder.Subject(generatedAt), body); err != nil {
		log.Printf("api: digest send: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "send_failed",
			"message": "digest could not be delivered",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// renderDigest builds the bulletin from the current snapshots. A missing
// quote board does not block it; a missing news snapshot does.
func (s *Server) renderDigest(c *gin.Context) ([]byte, time.Time, bool) {
	snap, generatedAt, err := s.news.Get(c.Request.Context())
	if err != nil {
		s.unavailable(c, err)
		return nil, time.Time{}, false
	}

	quotes, _, err := s.quotes.Get(c.Request.Context())
	if err != nil {
		quotes = nil
	}

	body, err := s.builder.Render(snap, quotes, generatedAt)
	if err != nil {
		log.Printf("api: digest render: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return nil, time.Time{}, false
	}
	return body, generatedAt, true
}

func (s *Server) unavailable(c *gin.Context, err error) {
	if errors.Is(err, cache.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "data_unavailable",
			"message": "no data collected yet, retry shortly",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

func (s *Server) articleView(art collector.Article) articleView {
	view := articleView{
		Title:    art.Title,
		URL:      art.URL,
		Summary:  art.Summary,
		ImageURL: art.ImageURL,
		Source:   art.Source,
		TopicKey: art.TopicID,
	}

	local := art.PublishedAt.In(s.loc)
	view.PublishedAt = local.Format(time.RFC3339)
	view.PublishedLabel = local.Format("02/01/2006 15:04")

	if topic, ok := s.cat.Get(art.TopicID); ok {
		view.TopicLabel = topic.Label
		view.Color = topic.Color
	}
	return view
}
