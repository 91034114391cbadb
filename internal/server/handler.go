package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crm-insights/server/internal/agent/conversations"
	"github.com/crm-insights/server/internal/agent/model"
	"github.com/crm-insights/server/internal/analytics"
	errx "github.com/crm-insights/server/internal/core/error"
	"github.com/crm-insights/server/internal/crm"
	logx "github.com/crm-insights/server/pkg/logger"
)

// Agent answers a conversation.
type Agent interface {
	Run(ctx context.Context, history []*schema.Message) (*model.Outcome, error)
}

// Handler serves the API routes over one loaded dataset.
type Handler struct {
	data     *crm.Dataset
	agent    Agent
	messages *conversations.MessagesManager
}

func NewHandler(data *crm.Dataset, agent Agent, messages *conversations.MessagesManager) *Handler {
	return &Handler{data: data, agent: agent, messages: messages}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.Chat)
	r.GET("/dashboard", h.Dashboard)
	r.GET("/opportunities", h.Opportunities)
	r.GET("/conversations/:id", h.Conversation)
	r.DELETE("/conversations/:id", h.ForgetConversation)
}

type errorResponse struct {
	Error string `json:"error"`
}

func fail(c *gin.Context, err error) {
	status, msg := errx.Resolve(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

// Health reports liveness and the record count of each loaded collection.
func (h *Handler) Health(c *gin.Context) {
	records := make(map[crm.Entity]int, len(crm.Entities))
	for _, e := range crm.Entities {
		records[e] = h.data.Size(e)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "records": records})
}

type chatRequest struct {
	ConversationID string              `json:"conversation_id"`
	Messages       []model.ChatMessage `json:"messages"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversation_id"`
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errx.BadRequest(err, errx.BadRequestMessage))
		return
	}

	history, err := h.messages.BuildHistory(req.Messages)
	if err != nil {
		fail(c, errx.BadRequest(err, errx.BadRequestMessage))
		return
	}

	out, err := h.agent.Run(c.Request.Context(), history)
	if err != nil {
		fail(c, err)
		return
	}

	id := strings.TrimSpace(req.ConversationID)
	if id == "" {
		id = uuid.NewString()
	}
	h.messages.Archive(c.Request.Context(), id, out.Transcript)

	logx.Debug().
		Str("conversation_id", id).
		Str("state", string(out.State)).
		Int("rounds", out.Rounds).
		Int("tool_calls", out.ToolCalls).
		Float64("total_cost_usd", out.TotalCostUSD).
		Msg("Chat answered")

	c.JSON(http.StatusOK, chatResponse{Reply: out.Reply, ConversationID: id})
}

// filterFromQuery reads ?stages=a,b&stage=&month=. An absent stages parameter
// selects every stage; a present but empty one selects none.
func filterFromQuery(c *gin.Context) analytics.Filter {
	f := analytics.Filter{
		Stage: strings.TrimSpace(c.Query("stage")),
		Month: strings.TrimSpace(c.Query("month")),
	}
	if raw, ok := c.GetQuery("stages"); ok {
		f.Stages = []string{}
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.Stages = append(f.Stages, s)
			}
		}
	}
	return f
}

func (h *Handler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, analytics.BuildDashboard(h.data, filterFromQuery(c)))
}

var errBadTableParam = errors.New("invalid table parameter")

func (h *Handler) Opportunities(c *gin.Context) {
	opt := analytics.TableOptions{Page: 1, Search: c.Query("q")}

	switch sort := analytics.SortKey(c.Query("sort")); sort {
	case "", analytics.SortAmount, analytics.SortCloseDate:
		opt.SortKey = sort
	default:
		fail(c, errx.BadRequest(errBadTableParam, "sort must be amount or closeDate"))
		return
	}

	switch c.DefaultQuery("dir", "asc") {
	case "asc":
	case "desc":
		opt.Desc = true
	default:
		fail(c, errx.BadRequest(errBadTableParam, "dir must be asc or desc"))
		return
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, errx.BadRequest(err, "page must be an integer"))
			return
		}
		opt.Page = page
	}

	opps := filterFromQuery(c).Apply(h.data.Opportunities)
	c.JSON(http.StatusOK, analytics.Table(opps, opt))
}

var errConversationNotFound = errors.New("conversation not found")

type toolCallView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type transcriptMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCallView `json:"tool_calls,omitempty"`
}

type conversationResponse struct {
	ConversationID string              `json:"conversation_id"`
	Messages       []transcriptMessage `json:"messages"`
}

// Conversation returns the archived transcript, tool rounds included.
func (h *Handler) Conversation(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	tr, err := h.messages.History(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if len(tr.Messages) == 0 {
		fail(c, errx.New(errConversationNotFound, http.StatusNotFound, "Conversation not found"))
		return
	}

	resp := conversationResponse{ConversationID: id, Messages: make([]transcriptMessage, 0, len(tr.Messages))}
	for _, m := range tr.Messages {
		tm := transcriptMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolName:   m.ToolName,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			tm.ToolCalls = append(tm.ToolCalls, toolCallView{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		resp.Messages = append(resp.Messages, tm)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ForgetConversation(c *gin.Context) {
	if err := h.messages.Forget(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
