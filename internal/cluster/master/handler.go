package master

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

func (m *Master) setupRoutes() {
	m.ginEngine.GET("/ping", m.handlePing)
	m.ginEngine.GET("/metadata", m.handleGetMetadata)
	m.ginEngine.POST("/node-heartbeat", m.handleHeartbeat)

	m.ginEngine.POST("/table/create", m.handleCreateTable)
	m.ginEngine.GET("/table/:name", m.handleTableStatus)
}

func (m *Master) handlePing(ctx *gin.Context) {
	ctx.Status(http.StatusOK)
}

// CreateTableRequest is the wire form of a create-table call.
type CreateTableRequest struct {
	Descriptor meta.TableDescriptor     `json:"descriptor"`
	Boundaries []meta.PartitionBoundary `json:"boundaries"`
}

func (m *Master) handleCreateTable(ctx *gin.Context) {
	var req CreateTableRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := m.CreateTable(ctx.Request.Context(), &req.Descriptor, req.Boundaries)
	if err == nil {
		ctx.JSON(http.StatusOK, gin.H{"message": "Table created"})
		return
	}

	var existsErr *TableExistsError
	switch {
	case errors.As(err, &existsErr):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrCoordinationUnavailable):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Printf("[master.handleCreateTable] create table %q failed: %v", req.Descriptor.Name, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (m *Master) handleTableStatus(ctx *gin.Context) {
	name := ctx.Param("name")

	state, err := m.states.State(ctx.Request.Context(), name)
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if state == meta.StateAbsent {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Table not found"})
		return
	}

	partitions, err := m.catalog.ListPartitions(ctx.Request.Context(), name)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"name":       name,
		"state":      state,
		"partitions": partitions,
	})
}

func (m *Master) handleGetMetadata(ctx *gin.Context) {
	metadata := struct {
		Nodes []meta.WorkerNode `json:"nodes"`
	}{Nodes: m.registry.OnlineNodes()}

	ctx.JSON(http.StatusOK, metadata)
}

func (m *Master) handleHeartbeat(ctx *gin.Context) {
	var node meta.WorkerNode
	if err := ctx.ShouldBindJSON(&node); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid node"})
		return
	}
	if node.ID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid node ID"})
		return
	}
	m.registry.Heartbeat(node)
	ctx.Status(http.StatusOK)
}
