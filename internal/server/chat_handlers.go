package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// chatRequest is the JSON body of a chat message from the reader page.
type chatRequest struct {
	Message string `json:"message"`
}

// chatResponse is the JSON reply returned to the reader page.
type chatResponse struct {
	Reply string `json:"reply"`
}

// handleChat relays one chat message about the current chapter to Ollama.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
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

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := s.chat.Ask(r.Context(), id, index, b.Spine[index].HTML, req.Message)
	if err != nil {
		s.log.Error("chat request failed", zap.String("book", id), zap.Int("chapter", index), zap.Error(err))
		http.Error(w, "Chat backend unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{Reply: reply})
}

// handleChatReset clears the conversation for the current chapter.
func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("chapter"))
	if err != nil {
		http.Error(w, "Chapter not found", http.StatusNotFound)
		return
	}
	s.chat.Reset(r.PathValue("book"), index)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
