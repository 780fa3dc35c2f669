package worker

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

func (w *Worker) setupRoutes() {
	w.ginEngine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// master routes
	w.ginEngine.POST("/region/open", w.handleOpenRegion)
	w.ginEngine.GET("/regions", w.handleListRegions)

	// data routes
	w.ginEngine.POST("/data/:table/:family/:key/:value", w.handleSetRequest)
	w.ginEngine.GET("/data/:table/:family/:key", w.handleGetRequest)
}

func (w *Worker) handleOpenRegion(c *gin.Context) {
	var d meta.PartitionDescriptor
	if err := c.ShouldBindJSON(&d); err != nil {
		log.Printf("[worker.handleOpenRegion] invalid region descriptor: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := w.openRegion(d); err != nil {
		log.Printf("[worker.handleOpenRegion] failed to open region %s: %v", d.ID, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, nil)
}

func (w *Worker) handleListRegions(c *gin.Context) {
	w.regionsMapMutex.RLock()
	descriptors := make([]meta.PartitionDescriptor, 0, len(w.regions))
	for _, r := range w.regions {
		descriptors = append(descriptors, r.Descriptor())
	}
	w.regionsMapMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{"regions": descriptors})
}

func (w *Worker) handleSetRequest(c *gin.Context) {
	table := c.Param("table")
	family := c.Param("family")
	key := c.Param("key")
	value := c.Param("value")

	if err := w.set(table, family, key, value); err != nil {
		log.Printf("[worker.handleSetRequest] failed to set key '%s' in table %q: %v", key, table, err)
		c.JSON(http.StatusNotAcceptable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, nil)
}

func (w *Worker) handleGetRequest(c *gin.Context) {
	table := c.Param("table")
	family := c.Param("family")
	key := c.Param("key")

	value, err := w.get(table, family, key)
	if err != nil {
		log.Printf("[worker.handleGetRequest] failed to get key '%s' from table %q: %v", key, table, err)
		c.JSON(http.StatusNotAcceptable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value})
}
