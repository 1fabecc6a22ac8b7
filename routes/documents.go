package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/internal/database"
	"legal-intel-platform/internal/storage"
	"legal-intel-platform/middleware"
	"legal-intel-platform/models"
	"legal-intel-platform/services"
	"legal-intel-platform/utils"
)

// DocumentHandlers serves document upload, status, and job endpoints.
type DocumentHandlers struct {
	cfg      *config.Config
	store    *database.Store
	objects  storage.ObjectStore
	ledger   *services.Ledger
	cache    *services.QueryCache
	enqueuer services.TaskEnqueuer
}

func NewDocumentHandlers(
	cfg *config.Config,
	store *database.Store,
	objects storage.ObjectStore,
	ledger *services.Ledger,
	cache *services.QueryCache,
	enqueuer services.TaskEnqueuer,
) *DocumentHandlers {
	return &DocumentHandlers{
		cfg:      cfg,
		store:    store,
		objects:  objects,
		ledger:   ledger,
		cache:    cache,
		enqueuer: enqueuer,
	}
}

// Upload accepts a PDF, stores it, creates the document and job records,
// invalidates the matter's query cache, and enqueues processing. The cache
// is cleared before the enqueue so even an instantly completing pipeline
// cannot race a stale cached answer.
func (h *DocumentHandlers) Upload(c *gin.Context) {
	matterID := middleware.GetMatterID(c)
	ctx := c.Request.Context()

	if err := c.Request.ParseMultipartForm(h.cfg.MaxFileSize); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "file_too_large",
			"File size exceeds maximum limit", nil)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.RespondWithBadRequest(c, "No file provided", nil)
		return
	}
	defer file.Close()

	if header.Size > h.cfg.MaxFileSize {
		utils.RespondWithError(c, http.StatusBadRequest, "file_too_large",
			"File size exceeds maximum limit", nil)
		return
	}
	ct := header.Header.Get("Content-Type")
	if !strings.Contains(ct, "pdf") && !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_file_type",
			"Only PDF files are allowed", nil)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxFileSize))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to read upload", nil)
		return
	}
	if err := services.ValidatePDF(data); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, utils.ErrorCodeOf(err),
			"File is not a valid PDF", nil)
		return
	}

	suffix, err := utils.GenerateSecureRandomString(12)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to generate storage name", nil)
		return
	}
	key := storage.UploadKey(matterID, fmt.Sprintf("%s.pdf", suffix))
	if err := h.objects.Put(ctx, key, data); err != nil {
		utils.RespondWithInternalError(c, "Failed to store file", nil)
		return
	}

	doc := models.Document{
		MatterID:    matterID,
		Filename:    header.Filename,
		StoragePath: key,
		ByteSize:    int64(len(data)),
		Status:      models.DocStatusPending,
		UploadedAt:  time.Now(),
	}
	res, err := h.store.Documents().InsertOne(ctx, doc)
	if err != nil {
		h.objects.Delete(ctx, key)
		utils.RespondWithInternalError(c, "Failed to create document record", nil)
		return
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)

	job, err := h.ledger.Create(ctx, matterID, doc.ID.Hex(), h.cfg.JobMaxRecoveryRetries)
	if err != nil {
		h.objects.Delete(ctx, key)
		h.store.Documents().DeleteOne(ctx, bson.M{"_id": doc.ID})
		utils.RespondWithInternalError(c, "Failed to create processing job", nil)
		return
	}

	if err := h.cache.InvalidateMatter(ctx, matterID); err != nil {
		// The cache TTL bounds how long stale answers can survive; the
		// upload itself still proceeds.
		_ = err
	}

	// Even if this enqueue is lost, the job stays queued and the
	// stuck-queued sweeper re-enqueues it.
	if handle, err := h.enqueuer.EnqueueProcessDocument(ctx, matterID, doc.ID.Hex(), job.ID.Hex()); err == nil {
		_ = h.ledger.SetTaskHandle(ctx, job.ID, handle)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":     "Document accepted for processing",
		"document_id": doc.ID.Hex(),
		"job_id":      job.ID.Hex(),
		"status":      models.DocStatusPending,
		"filename":    header.Filename,
		"size":        header.Size,
	})
}

// Get returns one document's metadata and processing state.
func (h *DocumentHandlers) Get(c *gin.Context) {
	matterID := middleware.GetMatterID(c)
	oid, err := primitive.ObjectIDFromHex(c.Param("documentId"))
	if err != nil {
		utils.RespondWithNotFound(c, "Document not found")
		return
	}

	var doc models.Document
	err = h.store.Documents().FindOne(c.Request.Context(),
		database.MatterFilter(matterID, bson.M{"_id": oid})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		utils.RespondWithNotFound(c, "Document not found")
		return
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load document", nil)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// List returns the matter's documents, newest first, paginated.
func (h *DocumentHandlers) List(c *gin.Context) {
	matterID := middleware.GetMatterID(c)

	page, limit := 1, 20
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	skip := (page - 1) * limit

	ctx := c.Request.Context()
	filter := database.MatterFilter(matterID, nil)
	cursor, err := h.store.Documents().Find(ctx, filter,
		options.Find().
			SetSort(bson.M{"uploaded_at": -1}).
			SetSkip(int64(skip)).
			SetLimit(int64(limit)))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list documents", nil)
		return
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		utils.RespondWithInternalError(c, "Failed to decode documents", nil)
		return
	}
	total, err := h.store.Documents().CountDocuments(ctx, filter)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to count documents", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// GetJob returns one job's ledger state, including stage and progress.
func (h *DocumentHandlers) GetJob(c *gin.Context) {
	matterID := middleware.GetMatterID(c)
	job, err := h.ledger.Get(c.Request.Context(), matterID, c.Param("jobId"))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load job", nil)
		return
	}
	if job == nil {
		utils.RespondWithNotFound(c, "Job not found")
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob marks a queued or processing job cancelled. The running stage
// finishes; no further stage starts.
func (h *DocumentHandlers) CancelJob(c *gin.Context) {
	matterID := middleware.GetMatterID(c)
	job, err := h.ledger.Cancel(c.Request.Context(), matterID, c.Param("jobId"))
	if errors.Is(err, services.ErrTransitionConflict) {
		c.JSON(http.StatusConflict, gin.H{
			"error_code": "not_cancellable",
			"message":    "Job is not in a cancellable state",
		})
		return
	}
	if err != nil {
		if utils.ErrorCodeOf(err) == "invalid_job_id" {
			utils.RespondWithNotFound(c, "Job not found")
			return
		}
		utils.RespondWithInternalError(c, "Failed to cancel job", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID.Hex(),
		"status": job.Status,
	})
}
