package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/internal/database"
	"legal-intel-platform/models"
	"legal-intel-platform/services"
	"legal-intel-platform/utils"
)

// WSHandlers upgrades progress-stream connections and attaches them to the
// fan-out hub. Auth failures are reported as WebSocket close codes rather
// than HTTP statuses because browser WebSocket clients cannot read HTTP
// error bodies.
type WSHandlers struct {
	cfg   *config.Config
	store *database.Store
	hub   *services.Hub
}

func NewWSHandlers(cfg *config.Config, store *database.Store, hub *services.Hub) *WSHandlers {
	return &WSHandlers{cfg: cfg, store: store, hub: hub}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS layer on the HTTP side; tokens gate
	// the stream itself.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscribe handles GET /matters/:matterId/ws?token=...
func (h *WSHandlers) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	closeWith := func(code int, reason string) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(5*time.Second))
		conn.Close()
	}

	claims, err := utils.ValidateJWT(c.Query("token"), h.cfg.AccessSecret)
	if err != nil {
		closeWith(services.CloseAuthFailed, "invalid token")
		return
	}

	matterID := c.Param("matterId")
	oid, err := primitive.ObjectIDFromHex(matterID)
	if err != nil {
		closeWith(services.CloseMatterNotFound, "matter not found")
		return
	}
	var matter models.Matter
	err = h.store.Matters().FindOne(c.Request.Context(), bson.M{
		"_id":        oid,
		"deleted_at": nil,
	}).Decode(&matter)
	if err == mongo.ErrNoDocuments {
		closeWith(services.CloseMatterNotFound, "matter not found")
		return
	}
	if err != nil {
		closeWith(services.CloseInternalError, "internal error")
		return
	}
	if !matter.HasMember(claims.UserID) {
		closeWith(services.CloseForbidden, "not a member of this matter")
		return
	}

	client := h.hub.Attach(matter.ID.Hex(), claims.UserID, conn)
	h.hub.ReadLoop(client)
}
