package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agrohub/internal/catalog"
)

var agrolinkTestNow = time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)

const agrolinkListingFixture = `<html><body>
<a href="/noticias/soja-fecha-em-alta/12345.html">Soja fecha em alta nos portos</a>
<a href="/noticias/previsao-do-tempo-para-o-sul/999.html">Previsão do tempo para o Sul</a>
<a href="/servicos/mercado">Serviços de mercado</a>
<a href="/noticias/milho-colheita-avanca"><img src="/banner.jpg"></a>
<a href="https://outro.example.org/noticia/estranha">Notícia de fora</a>
<a href="/noticias/soja-fecha-em-alta/12345.html">Soja fecha em alta nos portos</a>
</body></html>`

func agrolinkTestSource(srv *httptest.Server) *AgrolinkSource {
	src := NewAgrolinkSource(catalog.Default(), NewClient(5*time.Second), SourceOptions{})
	src.bases = []string{srv.URL + "/"}
	src.domain = "127.0.0.1"
	return src
}

func agrolinkTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(agrolinkListingFixture))
	})
	mux.HandleFunc("/noticias/soja-fecha-em-alta/12345.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<h1>Soja fecha em alta nos portos</h1>
<div class="conteudo">
<p>Os prêmios da soja nos portos brasileiros subiram com o avanço das exportações nesta semana de agosto.</p>
<p>Publicado em 21/08/2026 16:40</p>
</div>
</body></html>`))
	})
	mux.HandleFunc("/noticias/milho-colheita-avanca", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<h1>Colheita do milho avança no Paraná</h1>
<div class="conteudo">
<p>A colheita do milho segunda safra atinge três quartos da área plantada no estado, aponta o levantamento semanal.</p>
<p>Publicado em 20/08/2026 11:00</p>
</div>
</body></html>`))
	})
	return httptest.NewServer(mux)
}

func TestAgrolinkFetch(t *testing.T) {
	srv := agrolinkTestServer()
	defer srv.Close()

	src := agrolinkTestSource(srv)
	articles, err := src.Fetch(context.Background(), agrolinkTestNow)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d: %+v", len(articles), articles)
	}

	soy := articles[0]
	if soy.Title != "Soja fecha em alta nos portos" {
		t.Fatalf("title = %q", soy.Title)
	}
	if soy.Source != "Agrolink" || soy.TopicID != "soja" {
		t.Fatalf("source/topic = %q/%q", soy.Source, soy.TopicID)
	}
	if !soy.PublishedAt.Equal(time.Date(2026, 8, 21, 16, 40, 0, 0, time.UTC)) {
		t.Fatalf("publishedAt = %v", soy.PublishedAt)
	}

	corn := articles[1]
	if corn.Title != "Colheita do milho avança no Paraná" {
		t.Fatalf("title = %q", corn.Title)
	}
	if corn.TopicID != "milho" {
		t.Fatalf("topic = %q", corn.TopicID)
	}
}

func TestAgrolinkListingFilters(t *testing.T) {
	srv := agrolinkTestServer()
	defer srv.Close()

	src := agrolinkTestSource(srv)
	entries, err := src.parseListings(context.Background())
	if err != nil {
		t.Fatalf("parseListings error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 candidates after filtering, got %d: %+v", len(entries), entries)
	}
	if entries[0].URL != srv.URL+"/noticias/soja-fecha-em-alta/12345.html" {
		t.Fatalf("entries[0] = %q", entries[0].URL)
	}
	// imageless anchor falls back to the slug for its provisional title
	if entries[1].Title != "milho colheita avanca" {
		t.Fatalf("entries[1].Title = %q", entries[1].Title)
	}
}

func TestAgrolinkAllDetailsFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(`<html><body><a href="/noticias/alguma-coisa">Notícia de soja</a></body></html>`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := agrolinkTestSource(srv)
	if _, err := src.Fetch(context.Background(), agrolinkTestNow); err == nil {
		t.Fatalf("expected an error when every detail page fails")
	}
}

func TestSlugTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.agrolink.com.br/noticias/safra-de-soja-bate-recorde/", "safra de soja bate recorde"},
		{"https://www.agrolink.com.br/noticias/milho-em-queda?ref=home", "milho em queda"},
		{"https://www.agrolink.com.br/", ""},
	}
	for _, c := range cases {
		if got := slugTitle(c.in); got != c.want {
			t.Fatalf("slugTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
