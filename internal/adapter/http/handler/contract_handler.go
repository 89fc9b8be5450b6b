package handler

import (
	"errors"
	"net/http"

	"metacoin-ledger/internal/adapter/http/dto"
	"metacoin-ledger/internal/adapter/http/middleware"
	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"
	"metacoin-ledger/pkg/apperror"
	"metacoin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a caller retry sendCoin without transferring twice.
const HeaderIdempotencyKey = "Idempotency-Key"

// ContractHandler exposes the MetaCoin contract calls.
type ContractHandler struct {
	contractSvc ports.ContractService
}

// NewContractHandler creates a new ContractHandler.
func NewContractHandler(contractSvc ports.ContractService) *ContractHandler {
	return &ContractHandler{contractSvc: contractSvc}
}

// Info handles GET /api/v1/contract.
func (h *ContractHandler) Info(c *gin.Context) {
	response.OK(c, dto.NewContractInfoResponse(h.contractSvc.Info(c.Request.Context())))
}

// GetBalance handles GET /api/v1/accounts/:account/balance.
func (h *ContractHandler) GetBalance(c *gin.Context) {
	account, ok := accountParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	balance := h.contractSvc.GetBalance(ctx, account)

	response.OK(c, dto.BalanceResponse{
		Account: domain.FormatAccountID(account),
		Balance: uint64(balance),
		Unit:    h.contractSvc.Info(ctx).Symbol,
	})
}

// GetBalanceInEth handles GET /api/v1/accounts/:account/balance/eth.
func (h *ContractHandler) GetBalanceInEth(c *gin.Context) {
	account, ok := accountParam(c)
	if !ok {
		return
	}

	balance, err := h.contractSvc.GetBalanceInSecondaryUnit(c.Request.Context(), account)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		Account: domain.FormatAccountID(account),
		Balance: uint64(balance),
		Unit:    dto.SecondaryUnit,
	})
}

// TotalSupply handles GET /api/v1/total-supply.
func (h *ContractHandler) TotalSupply(c *gin.Context) {
	ctx := c.Request.Context()
	response.OK(c, dto.TotalSupplyResponse{
		TotalSupply: uint64(h.contractSvc.TotalSupply(ctx)),
		Symbol:      h.contractSvc.Info(ctx).Symbol,
	})
}

// SendCoin handles POST /api/v1/send-coin.
func (h *ContractHandler) SendCoin(c *gin.Context) {
	sender, ok := middleware.CallerAccount(c)
	if !ok {
		response.Error(c, apperror.ErrMissingToken())
		return
	}

	var req dto.SendCoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}

	idemKey := c.GetHeader(HeaderIdempotencyKey)
	if err := dto.ValidateIdempotencyKey(idemKey); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	// Binding already ran the account validator.
	recipient, err := domain.ParseAccountID(req.Recipient)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAccount(req.Recipient))
		return
	}

	receipt, err := h.contractSvc.SendCoin(c.Request.Context(), ports.SendCoinRequest{
		Sender:         sender,
		Recipient:      recipient,
		Amount:         domain.Balance(*req.Amount),
		IdempotencyKey: idemKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewReceiptResponse(receipt))
}

// accountParam parses the :account path parameter, rendering a 400 on failure.
func accountParam(c *gin.Context) (domain.AccountID, bool) {
	raw := c.Param("account")
	account, err := domain.ParseAccountID(raw)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAccount(raw))
		return domain.AccountID{}, false
	}
	return account, true
}

// bindError maps a gin binding failure to a client error.
func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.ErrPayloadTooLarge()
	}
	return apperror.Validation(dto.ValidationMessage(err))
}
