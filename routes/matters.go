package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-intel-platform/internal/database"
	"legal-intel-platform/middleware"
	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

// MatterHandlers serves matter CRUD. The creator becomes the owner.
type MatterHandlers struct {
	store *database.Store
}

func NewMatterHandlers(store *database.Store) *MatterHandlers {
	return &MatterHandlers{store: store}
}

func (h *MatterHandlers) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Matter name is required", nil)
		return
	}

	matter := models.Matter{
		Name: req.Name,
		Members: []models.MatterMember{
			{UserID: userID, Role: models.RoleOwner},
		},
		CreatedAt: time.Now(),
	}
	res, err := h.store.Matters().InsertOne(c.Request.Context(), matter)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to create matter", nil)
		return
	}
	matter.ID = res.InsertedID.(primitive.ObjectID)
	c.JSON(http.StatusCreated, matter)
}

func (h *MatterHandlers) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	cursor, err := h.store.Matters().Find(ctx, bson.M{
		"members.user_id": userID,
		"deleted_at":      nil,
	})
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list matters", nil)
		return
	}
	defer cursor.Close(ctx)

	var matters []models.Matter
	if err := cursor.All(ctx, &matters); err != nil {
		utils.RespondWithInternalError(c, "Failed to decode matters", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matters": matters})
}

// Get returns the matter loaded by the membership middleware.
func (h *MatterHandlers) Get(c *gin.Context) {
	if m, exists := c.Get("matter"); exists {
		c.JSON(http.StatusOK, m)
		return
	}
	utils.RespondWithNotFound(c, "Matter not found")
}

// Delete soft-deletes a matter. Owner only; enforced by the route's role
// requirement.
func (h *MatterHandlers) Delete(c *gin.Context) {
	matterID := middleware.GetMatterID(c)
	oid, err := primitive.ObjectIDFromHex(matterID)
	if err != nil {
		utils.RespondWithNotFound(c, "Matter not found")
		return
	}
	now := time.Now()
	_, err = h.store.Matters().UpdateOne(c.Request.Context(),
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"deleted_at": now}})
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to delete matter", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
