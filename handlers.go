package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/brewery_backend/models"
	"bitbucket.org/mmdatafocus/brewery_backend/sequence"
	"bitbucket.org/mmdatafocus/brewery_backend/utils"
	"github.com/gin-gonic/gin"
)

// respondError maps model errors to status codes. Unknown errors are attached
// to the gin context so customErrorLogger picks them up.
func respondError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, utils.ErrorUserIdRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrBatchAlreadyFinished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sequence.ErrAllocationExhausted):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not allocate a code, try again"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func paramId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return false
	}
	return true
}

func listIngredientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ingredients, err := models.ListIngredients(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ingredients)
	}
}

func createIngredientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewIngredient
		if !bindJSON(c, &req) {
			return
		}
		ingredient, err := models.CreateIngredient(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ingredient)
	}
}

func createBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewBatch
		if !bindJSON(c, &req) {
			return
		}
		batch, err := models.CreateBatch(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, batch)
	}
}

func listBatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batches, err := models.ListBatches(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, batches)
	}
}

func getBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		batch, err := models.GetBatch(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func updateBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var req models.BatchUpdate
		if !bindJSON(c, &req) {
			return
		}
		batch, err := models.UpdateBatch(c.Request.Context(), id, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func deleteBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		if _, err := models.DeleteBatch(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func addProcessEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var req models.NewProcessEntry
		if !bindJSON(c, &req) {
			return
		}
		entry, err := models.AddProcessEntry(c.Request.Context(), id, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func finishBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var req models.NewFinishedProduct
		if !bindJSON(c, &req) {
			return
		}
		product, err := models.FinishBatch(c.Request.Context(), id, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

func listFinishedProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := models.ListFinishedProducts(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

func getFinishedProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		product, err := models.GetFinishedProduct(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

type createBottlesRequest struct {
	Bottles []models.NewBottle `json:"bottles"`
}

func createBottlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var req createBottlesRequest
		if !bindJSON(c, &req) {
			return
		}
		bottles, err := models.CreateBottles(c.Request.Context(), id, req.Bottles)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bottles)
	}
}

func getBottleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		bottleId, ok := paramId(c, "bottleId")
		if !ok {
			return
		}
		bottle, err := models.GetBottle(c.Request.Context(), id, bottleId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bottle)
	}
}

func getPublicBottleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		bottleId, ok := paramId(c, "bottleId")
		if !ok {
			return
		}
		bottle, err := models.GetPublicBottle(c.Request.Context(), id, bottleId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bottle)
	}
}
