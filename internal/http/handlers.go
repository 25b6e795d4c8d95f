package http

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medassist-chatbot/pkg"
)

// User-facing messages.  Internal errors are logged, never returned.
const (
	statusRunning       = "Medical Chatbot API is running"
	msgNoMessage        = "No message provided"
	msgProcessingFailed = "Failed to process the request"
	msgNoBody           = "No message body found"
	msgTwilioFailure    = "We're sorry, but an internal error occurred."
	msgEmptyAnswer      = "Sorry, I encountered an error."
	unknownTwilioUser   = "unknown_twilio_user"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, pkg.StatusResponse{Status: statusRunning})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, pkg.StatusResponse{Status: "ok"})
}

// handleChat answers POST /chat.  A missing or blank message is rejected
// before the pipeline runs.
func (s *Server) handleChat(c *gin.Context) {
	var req pkg.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, pkg.ErrorResponse{Detail: msgNoMessage})
		return
	}
	if req.SessionID == "" {
		req.SessionID = pkg.DefaultSessionID
	}

	res, err := s.Chat.GetAnswer(c.Request.Context(), req.Message, req.SessionID)
	if err != nil {
		s.Logger.Error("process /chat request",
			"session_id", req.SessionID,
			"error", err,
			requestIDKey, c.GetString(requestIDKey),
		)
		c.JSON(http.StatusInternalServerError, pkg.ErrorResponse{Detail: msgProcessingFailed})
		return
	}
	reply := res.Answer
	if reply == "" {
		reply = msgEmptyAnswer
	}
	c.JSON(http.StatusOK, pkg.ChatResponse{Reply: reply})
}

// twiml is the messaging response document Twilio expects.
type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// handleTwilio answers an inbound SMS.  The sender's number is the session
// id so each phone keeps its own conversation.
func (s *Server) handleTwilio(c *gin.Context) {
	body := c.PostForm("Body")
	from := c.DefaultPostForm("From", unknownTwilioUser)
	if strings.TrimSpace(body) == "" {
		c.String(http.StatusBadRequest, msgNoBody)
		return
	}

	res, err := s.Chat.GetAnswer(c.Request.Context(), body, from)
	if err != nil {
		s.Logger.Error("process twilio webhook",
			"session_id", from,
			"error", err,
			requestIDKey, c.GetString(requestIDKey),
		)
		writeTwiML(c, http.StatusInternalServerError, msgTwilioFailure)
		return
	}
	reply := res.Answer
	if reply == "" {
		reply = msgEmptyAnswer
	}
	writeTwiML(c, http.StatusOK, reply)
}

func writeTwiML(c *gin.Context, code int, message string) {
	out, err := xml.Marshal(twiml{Message: message})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(code, "application/xml", append([]byte(xml.Header), out...))
}
