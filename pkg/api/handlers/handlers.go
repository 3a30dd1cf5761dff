package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cbodonnell/scribble/pkg/game"
	"github.com/cbodonnell/scribble/pkg/game/types"
	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/network"
	"github.com/cbodonnell/scribble/pkg/repositories"
	"github.com/cbodonnell/scribble/pkg/repositories/models"
	"github.com/cbodonnell/scribble/pkg/words"
	"github.com/gorilla/mux"
)

type CreateRoomRequest struct {
	PlayerName   string `json:"player_name"`
	TotalRounds  int    `json:"total_rounds"`
	WordCategory string `json:"word_category"`
}

type CreateRoomResponse struct {
	RoomID    string          `json:"room_id"`
	PlayerID  string          `json:"player_id"`
	RoomState *types.Snapshot `json:"room_state"`
}

type JoinRoomRequest struct {
	RoomID     string `json:"room_id"`
	PlayerName string `json:"player_name"`
}

type JoinRoomResponse struct {
	PlayerID  string          `json:"player_id"`
	RoomState *types.Snapshot `json:"room_state"`
}

type RoomExistsResponse struct {
	Exists bool `json:"exists"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
	Default    string   `json:"default"`
}

type HistoryResponse struct {
	RoomID  string                `json:"room_id"`
	Results []*models.GameResult  `json:"results"`
	Rounds  []*models.RoundRecord `json:"rounds"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func HandleCreateRoom(registry *game.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := CreateRoomRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		s, playerID, err := registry.CreateRoom(req.PlayerName, req.TotalRounds, req.WordCategory)
		if err != nil {
			if errors.Is(err, game.ErrInvalidName) {
				respondError(w, http.StatusBadRequest, "Name must be between 1 and 16 characters")
				return
			}
			log.Error("failed to create room: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to create room")
			return
		}

		respondJSON(w, http.StatusOK, CreateRoomResponse{
			RoomID:    s.ID(),
			PlayerID:  playerID,
			RoomState: s.SnapshotFor(playerID),
		})
	}
}

func HandleJoinRoom(registry *game.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := JoinRoomRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		playerID, s, err := registry.JoinRoom(req.RoomID, req.PlayerName)
		if err != nil {
			switch {
			case errors.Is(err, game.ErrRoomNotFound):
				respondError(w, http.StatusNotFound, "Room not found.")
			case errors.Is(err, game.ErrRoomFull):
				respondError(w, http.StatusConflict, "Room is full.")
			case errors.Is(err, game.ErrInvalidName):
				respondError(w, http.StatusBadRequest, "Name must be between 1 and 16 characters")
			default:
				log.Error("failed to join room: %v", err)
				respondError(w, http.StatusInternalServerError, "Failed to join room")
			}
			return
		}

		// existing players see the newcomer before it connects
		s.PublishSnapshot(r.Context(), "")

		respondJSON(w, http.StatusOK, JoinRoomResponse{
			PlayerID:  playerID,
			RoomState: s.SnapshotFor(playerID),
		})
	}
}

func HandleRoomExists(registry *game.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, ok := registry.Lookup(mux.Vars(r)["roomID"])
		respondJSON(w, http.StatusOK, RoomExistsResponse{Exists: ok})
	}
}

func HandleCategories(pool *words.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, CategoriesResponse{
			Categories: pool.Categories(),
			Default:    pool.Normalize(""),
		})
	}
}

// HandleRoomHistory lists the archived games and rounds of a room. A nil
// repository means archiving is disabled.
func HandleRoomHistory(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repository == nil {
			respondError(w, http.StatusServiceUnavailable, "Archiving is disabled")
			return
		}
		roomID := game.NormalizeRoomID(mux.Vars(r)["roomID"])

		results, err := repository.ListGameResults(r.Context(), roomID)
		if err != nil {
			log.Error("failed to list game results: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to list game results")
			return
		}
		rounds, err := repository.ListRounds(r.Context(), roomID)
		if err != nil {
			log.Error("failed to list rounds: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to list rounds")
			return
		}

		respondJSON(w, http.StatusOK, HistoryResponse{
			RoomID:  roomID,
			Results: results,
			Rounds:  rounds,
		})
	}
}

func HandleGetRound(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repository == nil {
			respondError(w, http.StatusServiceUnavailable, "Archiving is disabled")
			return
		}
		roundID, err := strconv.ParseInt(mux.Vars(r)["roundID"], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to parse roundID")
			return
		}

		round, err := repository.GetRound(r.Context(), roundID)
		if err != nil {
			if repositories.IsNotFound(err) {
				respondError(w, http.StatusNotFound, "Round not found")
				return
			}
			log.Error("failed to get round: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to get round")
			return
		}

		respondJSON(w, http.StatusOK, round)
	}
}

func HandleWebSocket(wsServer *network.WSServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		wsServer.HandleConnection(w, r, game.NormalizeRoomID(vars["roomID"]), vars["playerID"])
	}
}
