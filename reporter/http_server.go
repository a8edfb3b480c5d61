// This is a http type of reporter.
// It fetches data from internal state/statedb
// and publishes on the http routes.

package reporter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/state"
)

const (
	ROUTE_HELLO     = "/hello"
	ROUTE_PROGRESS  = "/progress"
	ROUTE_TRANSFER  = "/transfer"
	ROUTE_TRANSFERS = "/transfers"
	ROUTE_PAIR      = "/pair"
	ROUTE_METRICS   = "/metrics"
)

// StateReader is the read side of the state the reporter publishes.
type StateReader interface {
	GetLastProcessedBlock(network agreement.Network) (uint64, bool, error)
	GetTransfer(nonce string) (*state.Transfer, bool, error)
	GetTransfersByStatus(status state.TransferStatus) ([]*state.Transfer, error)
	CountTransfers() (uint64, error)
	CountPendingUpdates() (uint64, error)
	GetPair(id string) (*state.Pair, bool, error)
}

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream data source
	statedb StateReader
}

func NewHttpReporter(serverIP string, serverPort string, statedb StateReader) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		statedb:    statedb,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Define routes & handlers
	router.GET(ROUTE_HELLO, Hello)
	router.GET(ROUTE_PROGRESS, h.Progress)
	router.GET(ROUTE_TRANSFER, h.Transfer)
	router.GET(ROUTE_TRANSFERS, h.Transfers)
	router.GET(ROUTE_PAIR, h.Pair)
	router.GET(ROUTE_METRICS, gin.WrapH(promhttp.Handler()))

	return router
}

// Hook up router & ip:port. Run blocks until ctx is cancelled.
func (h *HttpReporter) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    h.serverIP + ":" + h.serverPort,
		Handler: h.SetupRouter(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithField("error", err).Warn("failed to shut down http reporter")
		}
	}()

	logger.WithField("address", srv.Addr).Info("http reporter listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Example route.
func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "world",
	})
}

// Progress publishes the last committed block of each pipeline, the
// number of indexed transfers and the updates still waiting for a transfer
// of the other chain.
func (h *HttpReporter) Progress(c *gin.Context) {
	progress := gin.H{}
	for _, network := range []agreement.Network{agreement.NetworkVara, agreement.NetworkEthereum} {
		blk, ok, err := h.statedb.GetLastProcessedBlock(network)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if ok {
			progress[string(network)] = blk
		} else {
			progress[string(network)] = nil
		}
	}

	count, err := h.statedb.CountTransfers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	pending, err := h.statedb.CountPendingUpdates()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lastProcessedBlock": progress,
		"transfers":          count,
		"pendingUpdates":     pending,
	})
}

func (h *HttpReporter) Transfer(c *gin.Context) {
	nonce := strings.TrimSpace(c.Query("nonce"))
	if nonce == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nonce must be provided"})
		return
	}
	if strings.HasPrefix(nonce, "0x") || strings.HasPrefix(nonce, "0X") {
		nonce = "0x" + strings.ToLower(nonce[2:])
	}

	t, ok, err := h.statedb.GetTransfer(nonce)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No transfer found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newTransferView(t)})
}

func (h *HttpReporter) Transfers(c *gin.Context) {
	status := state.TransferStatus(c.Query("status"))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}

	ts, err := h.statedb.GetTransfersByStatus(status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]*transferView, 0, len(ts))
	for _, t := range ts {
		views = append(views, newTransferView(t))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (h *HttpReporter) Pair(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be provided"})
		return
	}

	p, ok, err := h.statedb.GetPair(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pair found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newPairView(p)})
}

// transferView keeps the amount exact on the wire.
type transferView struct {
	ID                      string     `json:"id"`
	Nonce                   string     `json:"nonce"`
	SourceNetwork           string     `json:"sourceNetwork"`
	DestNetwork             string     `json:"destNetwork"`
	Source                  string     `json:"source"`
	Destination             string     `json:"destination"`
	Sender                  string     `json:"sender"`
	Receiver                string     `json:"receiver"`
	Amount                  string     `json:"amount"`
	Status                  string     `json:"status"`
	TxHash                  string     `json:"txHash"`
	BlockNumber             uint64     `json:"blockNumber"`
	Timestamp               time.Time  `json:"timestamp"`
	BridgingStartedAtBlock  *uint64    `json:"bridgingStartedAtBlock,omitempty"`
	BridgingStartedAtTxHash *string    `json:"bridgingStartedAtTxHash,omitempty"`
	CompletedAt             *time.Time `json:"completedAt,omitempty"`
	CompletedAtBlock        *uint64    `json:"completedAtBlock,omitempty"`
	CompletedAtTxHash       *string    `json:"completedAtTxHash,omitempty"`
	IsPriorityFeePaid       bool       `json:"isPriorityFeePaid"`
}

func newTransferView(t *state.Transfer) *transferView {
	return &transferView{
		ID:                      t.ID,
		Nonce:                   t.Nonce,
		SourceNetwork:           string(t.SourceNetwork),
		DestNetwork:             string(t.DestNetwork),
		Source:                  t.Source,
		Destination:             t.Destination,
		Sender:                  t.Sender,
		Receiver:                t.Receiver,
		Amount:                  t.Amount.String(),
		Status:                  string(t.Status),
		TxHash:                  t.TxHash,
		BlockNumber:             t.BlockNumber,
		Timestamp:               t.Timestamp,
		BridgingStartedAtBlock:  t.BridgingStartedAtBlock,
		BridgingStartedAtTxHash: t.BridgingStartedAtTxHash,
		CompletedAt:             t.CompletedAt,
		CompletedAtBlock:        t.CompletedAtBlock,
		CompletedAtTxHash:       t.CompletedAtTxHash,
		IsPriorityFeePaid:       t.IsPriorityFeePaid,
	}
}

type pairView struct {
	ID                string  `json:"id"`
	VaraToken         string  `json:"varaToken"`
	VaraTokenSymbol   string  `json:"varaTokenSymbol"`
	VaraTokenName     string  `json:"varaTokenName"`
	VaraTokenDecimals uint8   `json:"varaTokenDecimals"`
	EthToken          string  `json:"ethToken"`
	EthTokenSymbol    string  `json:"ethTokenSymbol"`
	EthTokenName      string  `json:"ethTokenName"`
	EthTokenDecimals  uint8   `json:"ethTokenDecimals"`
	TokenSupply       string  `json:"tokenSupply"`
	IsActive          bool    `json:"isActive"`
	IsRemoved         bool    `json:"isRemoved"`
	ActiveSinceBlock  uint64  `json:"activeSinceBlock"`
	ActiveToBlock     *uint64 `json:"activeToBlock,omitempty"`
	UpgradedTo        *string `json:"upgradedTo,omitempty"`
}

func newPairView(p *state.Pair) *pairView {
	return &pairView{
		ID:                p.ID,
		VaraToken:         p.VaraToken,
		VaraTokenSymbol:   p.VaraTokenSymbol,
		VaraTokenName:     p.VaraTokenName,
		VaraTokenDecimals: p.VaraTokenDecimals,
		EthToken:          p.EthToken,
		EthTokenSymbol:    p.EthTokenSymbol,
		EthTokenName:      p.EthTokenName,
		EthTokenDecimals:  p.EthTokenDecimals,
		TokenSupply:       string(p.TokenSupply),
		IsActive:          p.IsActive,
		IsRemoved:         p.IsRemoved,
		ActiveSinceBlock:  p.ActiveSinceBlock,
		ActiveToBlock:     p.ActiveToBlock,
		UpgradedTo:        p.UpgradedTo,
	}
}
