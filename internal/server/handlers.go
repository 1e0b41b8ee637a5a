package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/temirov/clawaudit/internal/attestation"
	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/remediation"
	"github.com/temirov/clawaudit/internal/scan"
	"github.com/temirov/clawaudit/internal/webhook"
)

const (
	statusOKConstant                = "ok"
	codeHashQueryConstant           = "code_hash"
	contractAddressQueryConstant    = "contract_address"
	limitQueryConstant              = "limit"
	invalidLimitTemplateConstant    = "limit must be an integer: %q"
	missingPublisherItemConstant    = "github"
	missingWebhookItemConstant      = "webhook"
	maximumWebhookPayloadBytesConst = 25 << 20
	payloadTooLargeMessageConstant  = "webhook payload exceeds the size limit"
)

type scanRequestBody struct {
	ContractCode          string                      `json:"contract_code"`
	ContractAddress       string                      `json:"contract_address"`
	ScanKind              string                      `json:"scan_kind"`
	NotificationOverrides *scan.NotificationOverrides `json:"notification_overrides"`
}

type trailResponse struct {
	Count   int                 `json:"count"`
	Entries []attestation.Proof `json:"entries"`
}

type remediationRequestBody struct {
	Repository  string `json:"repo"`
	FilePath    string `json:"file_path"`
	PatchedCode string `json:"patched_code"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	GitHubToken string `json:"github_token"`
}

type devUpdateRequestBody struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (server *Server) handleHealth(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, statusResponse{Status: statusOKConstant})
}

func (server *Server) handleScan(ginContext *gin.Context) {
	var body scanRequestBody
	if bindError := ginContext.ShouldBindJSON(&body); bindError != nil {
		server.writeError(ginContext, invalidBodyError{cause: bindError})
		return
	}
	request := scan.Request{
		SourceCode:      body.ContractCode,
		ContractAddress: body.ContractAddress,
		Kind:            scan.Kind(body.ScanKind),
	}
	if body.NotificationOverrides != nil {
		request.NotificationOverrides = *body.NotificationOverrides
	}

	// A started audit runs to completion even if the client goes away.
	result, scanError := server.scanner.Scan(context.WithoutCancel(ginContext.Request.Context()), request)
	if scanError != nil {
		server.writeError(ginContext, scanError)
		return
	}
	ginContext.JSON(http.StatusOK, result)
}

func (server *Server) handleProof(ginContext *gin.Context) {
	proof, found, lookupError := server.registry.Lookup(
		ginContext.Request.Context(),
		ginContext.Query(codeHashQueryConstant),
		ginContext.Query(contractAddressQueryConstant),
	)
	if lookupError != nil {
		server.writeError(ginContext, lookupError)
		return
	}
	if !found {
		writeErrorResponse(ginContext, http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: notFoundMessageConstant})
		return
	}
	ginContext.JSON(http.StatusOK, proof)
}

func (server *Server) handleTrail(ginContext *gin.Context) {
	limit := attestation.DefaultTrailLimit
	if rawLimit := strings.TrimSpace(ginContext.Query(limitQueryConstant)); len(rawLimit) > 0 {
		parsedLimit, parseError := strconv.Atoi(rawLimit)
		if parseError != nil {
			server.writeError(ginContext, invalidBodyError{cause: fmt.Errorf(invalidLimitTemplateConstant, rawLimit)})
			return
		}
		limit = parsedLimit
	}
	if limitError := attestation.ValidateTrailLimit(limit); limitError != nil {
		server.writeError(ginContext, limitError)
		return
	}

	proofs, listError := server.registry.List(ginContext.Request.Context(), limit)
	if listError != nil {
		server.writeError(ginContext, listError)
		return
	}
	if proofs == nil {
		proofs = []attestation.Proof{}
	}
	ginContext.JSON(http.StatusOK, trailResponse{Count: len(proofs), Entries: proofs})
}

func (server *Server) handleRemediation(ginContext *gin.Context) {
	if server.publisher == nil {
		server.writeError(ginContext, scan.ConfigurationError{Missing: []string{missingPublisherItemConstant}})
		return
	}
	var body remediationRequestBody
	if bindError := ginContext.ShouldBindJSON(&body); bindError != nil {
		server.writeError(ginContext, invalidBodyError{cause: bindError})
		return
	}

	pullRequest, publishError := server.publisher.CreatePullRequest(context.WithoutCancel(ginContext.Request.Context()), remediation.Request{
		Repository:  body.Repository,
		FilePath:    body.FilePath,
		PatchedCode: body.PatchedCode,
		Title:       body.Title,
		Body:        body.Body,
		Token:       body.GitHubToken,
	})
	if publishError != nil {
		server.writeError(ginContext, publishError)
		return
	}
	ginContext.JSON(http.StatusOK, pullRequest)
}

func (server *Server) handleDevUpdate(ginContext *gin.Context) {
	var body devUpdateRequestBody
	if bindError := ginContext.ShouldBindJSON(&body); bindError != nil {
		server.writeError(ginContext, invalidBodyError{cause: bindError})
		return
	}
	if len(strings.TrimSpace(body.Content)) == 0 {
		server.writeError(ginContext, notify.ErrContentRequired)
		return
	}
	if server.developerSender == nil {
		server.writeError(ginContext, scan.ConfigurationError{Missing: []string{scan.MissingTelegramToken, scan.MissingTelegramChatID}})
		return
	}

	if sendError := server.developerSender.Send(ginContext.Request.Context(), notify.Message{Title: body.Title, Content: body.Content}); sendError != nil {
		server.writeError(ginContext, sendError)
		return
	}
	ginContext.JSON(http.StatusOK, statusResponse{Status: statusOKConstant})
}

func (server *Server) handleWebhook(ginContext *gin.Context) {
	if server.webhookHandler == nil {
		server.writeError(ginContext, scan.ConfigurationError{Missing: []string{missingWebhookItemConstant}})
		return
	}
	payload, readError := io.ReadAll(io.LimitReader(ginContext.Request.Body, maximumWebhookPayloadBytesConst+1))
	if readError != nil {
		server.writeError(ginContext, invalidBodyError{cause: readError})
		return
	}
	if len(payload) > maximumWebhookPayloadBytesConst {
		server.writeError(ginContext, invalidBodyError{cause: errors.New(payloadTooLargeMessageConstant)})
		return
	}
	if verificationError := webhook.VerifySignature(server.webhookSecret, payload, ginContext.GetHeader(webhook.SignatureHeader)); verificationError != nil {
		server.writeError(ginContext, verificationError)
		return
	}

	result, handleError := server.webhookHandler.Handle(context.WithoutCancel(ginContext.Request.Context()), ginContext.GetHeader(webhook.EventHeader), payload)
	var payloadError webhook.PayloadError
	switch {
	case errors.As(handleError, &payloadError):
		server.writeError(ginContext, handleError)
	case handleError != nil:
		ginContext.JSON(http.StatusBadGateway, result)
	default:
		ginContext.JSON(http.StatusOK, result)
	}
}
