package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"pricepoint/internal/pkg/logger"
	"pricepoint/internal/service/discount/application"
	"pricepoint/internal/service/discount/domain"
)

const maxBodyBytes = 1 << 20

// DiscountHandler 封装了 discount 服务的 HTTP 处理器
type DiscountHandler struct {
	service *application.DiscountService
	admin   *application.CampaignAdminService
	hub     *AuditHub
}

// NewDiscountHandler 创建一个新的 HTTP 处理器实例, hub 可以为 nil
func NewDiscountHandler(service *application.DiscountService, admin *application.CampaignAdminService, hub *AuditHub) *DiscountHandler {
	return &DiscountHandler{service: service, admin: admin, hub: hub}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *DiscountHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/discounts/evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /v1/discounts/evaluate/batch", h.handleEvaluateBatch)
	mux.HandleFunc("PUT /v1/campaigns", h.handleSaveCampaign)
	mux.HandleFunc("GET /v1/campaigns", h.handleListCampaigns)
	mux.HandleFunc("GET /v1/campaigns/{id}", h.handleGetCampaign)
	if h.hub != nil {
		mux.HandleFunc("GET /ws/audit", h.hub.ServeWS)
	}
}

type errorResponse struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (h *DiscountHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.EvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Evaluate(ctx, &req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, resultStatus(result), result)
}

func (h *DiscountHandler) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.BatchEvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items, err := h.service.EvaluateBatch(ctx, req.Requests)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, application.BatchEvaluateResponse{Items: items})
}

func (h *DiscountHandler) handleSaveCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var campaign domain.Campaign
	if err := decodeBody(w, r, &campaign); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	saved, err := h.admin.SaveCampaign(ctx, &campaign)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("campaign_id", campaign.ID).Msg("campaign rejected")
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, application.SaveCampaignResponse{ID: saved.ID, Version: saved.Version})
}

func (h *DiscountHandler) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	campaigns, err := h.admin.ListCampaigns(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (h *DiscountHandler) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	campaign, err := h.admin.GetCampaign(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// statusFor 根据错误类型返回不同的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCampaignNotFound), errors.Is(err, domain.ErrNoDefaultCampaign):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDuplicateScopeKey):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// resultStatus 活动不适用仍是正常结果; 只有评估失败才返回错误码
func resultStatus(result *domain.DiscountResult) int {
	switch result.Status {
	case domain.StatusConfigurationError:
		return http.StatusUnprocessableEntity
	case domain.StatusInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		resp.Violations = cfgErr.Violations
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
