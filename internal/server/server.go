// Package server exposes converted books through a read-only web reading
// interface: a library index, paginated chapter views, image passthrough,
// and an optional chapter chat backed by a local Ollama server.
package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strconv"

	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"github.com/yuanying/epubshelf/internal/book"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server handles the HTTP reading interface over a book store.
type Server struct {
	store *book.Store
	chat  *ChatService
	log   *zap.Logger
	tmpl  *template.Template
}

// New creates a server. chat may be nil to disable the chat routes.
func New(store *book.Store, chat *ChatService, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Server{store: store, chat: chat, log: log, tmpl: tmpl}, nil
}

// Routes returns the request multiplexer for all reader routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleLibrary)
	mux.HandleFunc("GET /read/{book}", s.handleBookRedirect)
	mux.HandleFunc("GET /read/{book}/{chapter}", s.handleChapter)
	mux.HandleFunc("GET /read/{book}/images/{name}", s.handleImage)
	if s.chat != nil {
		mux.HandleFunc("POST /chat/{book}/{chapter}", s.handleChat)
		mux.HandleFunc("POST /chat/{book}/{chapter}/reset", s.handleChatReset)
	}
	return mux
}

// handleLibrary lists all available processed books.
func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	s.render(w, "library.html", map[string]any{"Books": s.store.List()})
}

// handleBookRedirect sends the reader to the book's first chapter.
func (s *Server) handleBookRedirect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("book")
	if _, err := s.store.Get(id); err != nil {
		http.Error(w, "Book not found", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, "/read/"+id+"/0", http.StatusSeeOther)
}

// tocNode is a TOC entry resolved for display. Index is the spine index the
// entry navigates to, or -1 when the target matches no spine item; such
// entries render as plain labels.
type tocNode struct {
	Label    string
	Index    int
	Children []tocNode
}

// chapterView is the data for the reader template.
type chapterView struct {
	BookID       string
	Title        string
	Author       string
	ChapterTitle string
	ChapterIndex int
	ChapterHTML  template.HTML
	PrevIndex    int // -1 when on the first chapter
	NextIndex    int // -1 when on the last chapter
	TOC          []tocNode
	ChatEnabled  bool
}

// handleChapter renders one spine entry with sidebar TOC and prev/next links.
func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("book")
	b, err := s.store.Get(id)
	if err != nil {
		http.Error(w, "Book not found", http.StatusNotFound)
		return
	}

	index, err := strconv.Atoi(r.PathValue("chapter"))
	if err != nil || index < 0 || index >= len(b.Spine) {
		http.Error(w, "Chapter not found", http.StatusNotFound)
		return
	}

	chapter := b.Spine[index]

	view := chapterView{
		BookID:       id,
		Title:        b.Metadata.Title,
		Author:       b.Metadata.Author(),
		ChapterTitle: chapter.Title,
		ChapterIndex: index,
		ChapterHTML:  template.HTML(chapter.HTML),
		PrevIndex:    index - 1,
		NextIndex:    -1,
		TOC:          resolveTOC(b),
		ChatEnabled:  s.chat != nil,
	}
	if index < len(b.Spine)-1 {
		view.NextIndex = index + 1
	}

	s.render(w, "reader.html", view)
}

// resolveTOC maps the persisted TOC tree onto spine indices at render time.
func resolveTOC(b *book.Book) []tocNode {
	idx := b.SpineIndex()
	var convert func(entries []book.TOCEntry) []tocNode
	convert = func(entries []book.TOCEntry) []tocNode {
		if len(entries) == 0 {
			return nil
		}
		nodes := make([]tocNode, 0, len(entries))
		for _, e := range entries {
			nodes = append(nodes, tocNode{
				Label:    e.Label,
				Index:    book.Resolve(idx, e.Target),
				Children: convert(e.Children),
			})
		}
		return nodes
	}
	return convert(b.TOC)
}

// handleImage serves extracted image bytes for a book.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("book")
	name := r.PathValue("name")

	data, err := os.ReadFile(s.store.ImagePath(id, name))
	if err != nil {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		w.Header().Set("Content-Type", kind.MIME.Value)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Write(data)
}

// render executes a template, logging failures after headers may be gone.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("template render failed", zap.String("template", name), zap.Error(err))
	}
}
