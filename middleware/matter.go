package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"legal-intel-platform/internal/database"
	"legal-intel-platform/models"
)

// roleRank orders matter roles for minimum-role checks.
var roleRank = map[string]int{
	models.RoleViewer: 1,
	models.RoleEditor: 2,
	models.RoleOwner:  3,
}

type MatterMiddleware struct {
	store *database.Store
}

func NewMatterMiddleware(store *database.Store) *MatterMiddleware {
	return &MatterMiddleware{store: store}
}

// RequireMatterRole loads the matter from the :matterId path parameter and
// verifies the authenticated user holds at least minRole in it. The loaded
// matter is stored in the context for handlers.
func (m *MatterMiddleware) RequireMatterRole(minRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Authentication required",
			})
			c.Abort()
			return
		}

		matterID := c.Param("matterId")
		oid, err := primitive.ObjectIDFromHex(matterID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "matter_not_found",
				"message":    "Matter does not exist",
			})
			c.Abort()
			return
		}

		var matter models.Matter
		err = m.store.Matters().FindOne(c.Request.Context(), bson.M{
			"_id":        oid,
			"deleted_at": nil,
		}).Decode(&matter)
		if err == mongo.ErrNoDocuments {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "matter_not_found",
				"message":    "Matter does not exist",
			})
			c.Abort()
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to load matter",
			})
			c.Abort()
			return
		}

		role := matter.RoleOf(userID)
		if role == "" || roleRank[role] < roleRank[minRole] {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "forbidden",
				"message":    "Insufficient role for this matter",
			})
			c.Abort()
			return
		}

		c.Set("matter", &matter)
		c.Set("matter_id", matter.ID.Hex())
		c.Set("matter_role", role)
		c.Next()
	}
}

// GetMatterID returns the verified matter ID from the request context.
func GetMatterID(c *gin.Context) string {
	if v, exists := c.Get("matter_id"); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
