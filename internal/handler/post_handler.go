package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/clubhub/internal/listing"
	"github.com/hitoshi/clubhub/internal/middleware"
	"github.com/hitoshi/clubhub/internal/model"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	// List は表示用に導出した一覧を返す。
	List(ctx context.Context, kind model.Kind, filterText, manageUsername string) ([]model.Post, error)
	// Get は指定IDの投稿を返す。
	Get(ctx context.Context, kind model.Kind, id string) (*model.Post, error)
	// Create はフォームを検証して投稿を作成する。
	Create(ctx context.Context, kind model.Kind, form model.PostForm) (*model.Post, error)
	// Update は投稿を上書きする。actingUsernameで権限を判定する。
	Update(ctx context.Context, kind model.Kind, id, actingUsername string, form model.PostForm) (*model.Post, error)
	// Delete は投稿を削除する。actingUsernameで権限を判定する。
	Delete(ctx context.Context, kind model.Kind, id, actingUsername string) error
	// Today は期限切れ判定に使う今日の日付を返す。
	Today() civil.Date
}

// PostHandler は投稿の一覧・作成・編集・削除のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// postRequest は投稿作成・編集リクエストのボディ。
// 申込リンクは種別ごとのフィールド名で受け付ける。
type postRequest struct {
	Type             string `json:"type"`
	Username         string `json:"username"`
	ClubName         string `json:"club_name"`
	ClubLogo         string `json:"club_logo"`
	EventName        string `json:"event_name"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	RegistrationLink string `json:"registration_link"`
	RecruitmentLink  string `json:"recruitment_link"`
	WhatsappGroup    string `json:"whatsapp_group"`
	InstagramLink    string `json:"instagram_link"`
	LinkedinLink     string `json:"linkedin_link"`
}

// toForm はリクエストをフォームに変換する。
// 種別に対応するリンクを優先し、空の場合はもう一方のリンクを使う。
func (req postRequest) toForm(kind model.Kind) model.PostForm {
	link := req.RegistrationLink
	other := req.RecruitmentLink
	if kind == model.KindRecruitment {
		link, other = other, link
	}
	if link == "" {
		link = other
	}

	return model.PostForm{
		Kind:          model.Kind(req.Type),
		Username:      req.Username,
		ClubName:      req.ClubName,
		ClubLogo:      req.ClubLogo,
		EventName:     req.EventName,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Link:          link,
		WhatsappGroup: req.WhatsappGroup,
		InstagramLink: req.InstagramLink,
		LinkedinLink:  req.LinkedinLink,
	}
}

// postResponse は投稿のAPIレスポンス。
// 種別固有のフィールドは該当する種別の場合のみ含まれる。
type postResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Username  string    `json:"username"`
	ClubName  string    `json:"club_name"`
	ClubLogo  string    `json:"club_logo"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
	Expired   bool      `json:"expired"`

	*eventResponse
	*recruitmentResponse
}

type eventResponse struct {
	EventName        string `json:"event_name"`
	RegistrationLink string `json:"registration_link"`
	WhatsappGroup    string `json:"whatsapp_group"`
	InstagramLink    string `json:"instagram_link"`
	LinkedinLink     string `json:"linkedin_link"`
}

type recruitmentResponse struct {
	RecruitmentLink string `json:"recruitment_link"`
}

// toPostResponse はmodel.PostからAPIレスポンスに変換する。
func toPostResponse(p *model.Post, today civil.Date) postResponse {
	resp := postResponse{
		ID:        p.ID,
		Type:      string(p.Kind),
		Username:  p.Username,
		ClubName:  p.ClubName,
		ClubLogo:  p.ClubLogo,
		StartDate: p.StartDate.String(),
		EndDate:   p.EndDate.String(),
		CreatedAt: p.CreatedAt,
		Expired:   listing.IsExpired(*p, today),
	}
	if p.Event != nil {
		resp.eventResponse = &eventResponse{
			EventName:        p.Event.EventName,
			RegistrationLink: p.Event.RegistrationLink,
			WhatsappGroup:    p.Event.WhatsappGroup,
			InstagramLink:    p.Event.InstagramLink,
			LinkedinLink:     p.Event.LinkedinLink,
		}
	}
	if p.Recruitment != nil {
		resp.recruitmentResponse = &recruitmentResponse{
			RecruitmentLink: p.Recruitment.RecruitmentLink,
		}
	}
	return resp
}

func toPostResponses(posts []model.Post, today civil.Date) []postResponse {
	results := make([]postResponse, len(posts))
	for i := range posts {
		results[i] = toPostResponse(&posts[i], today)
	}
	return results
}

// ListPosts は表示用の一覧を返す。
// GET /api/{collection}?filter=&manage=
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	posts, err := h.service.List(r.Context(), kind, q.Get("filter"), q.Get("manage"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponses(posts, h.service.Today()))
}

// GetPost は投稿の詳細を返す。
// GET /api/{collection}/{id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}

	post, err := h.service.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post, h.service.Today()))
}

// CreatePost は投稿を作成する。
// POST /api/{collection}
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	post, err := h.service.Create(r.Context(), kind, req.toForm(kind))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(post, h.service.Today()))
}

// UpdatePost は投稿を編集する。操作者のユーザー名はX-Usernameヘッダーで受け取る。
// PUT /api/{collection}/{id}
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	acting := r.Header.Get(middleware.UsernameHeader)
	post, err := h.service.Update(r.Context(), kind, chi.URLParam(r, "id"), acting, req.toForm(kind))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post, h.service.Today()))
}

// DeletePost は投稿を削除する。操作者のユーザー名はX-Usernameヘッダーで受け取る。
// DELETE /api/{collection}/{id}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}

	acting := r.Header.Get(middleware.UsernameHeader)
	if err := h.service.Delete(r.Context(), kind, chi.URLParam(r, "id"), acting); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// kindFromPath はURLのコレクション名から種別を解析する。
// 未知のコレクションの場合はエラーレスポンスを書き込みfalseを返す。
func kindFromPath(w http.ResponseWriter, r *http.Request) (model.Kind, bool) {
	kind, err := model.ParseCollection(chi.URLParam(r, "collection"))
	if err != nil {
		handleServiceError(w, err)
		return "", false
	}
	return kind, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
