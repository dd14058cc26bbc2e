package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kataras/iris/v12"
	"github.com/pires/go-proxyproto"
	"github.com/sirupsen/logrus"
)

// startWebServer builds the iris application and serves it, optionally
// behind the PROXY protocol when the gateway sits behind a load balancer.
func (gateway *Gateway) startWebServer() error {
	app := iris.New()

	app.Get("/health", webHealthCheck)

	services := app.Party("/services", authMiddleware)
	services.Post("/list_inbox", gateway.webListInbox)
	services.Post("/delete_sms", gateway.webDeleteSMS)
	services.Post("/cleanup_inbox", gateway.webCleanupInbox)
	services.Get("/get_inbox_json", gateway.webGetInboxJSON)
	services.Post("/forward_sms", gateway.webForwardSMS)

	contacts := app.Party("/contacts", authMiddleware)
	contacts.Get("/", gateway.webListContacts)
	contacts.Post("/", gateway.webAddContact)
	contacts.Delete("/{id}", gateway.webDeleteContact)
	contacts.Post("/import", gateway.webImportContacts)

	whitelist := app.Party("/whitelist", authMiddleware)
	whitelist.Get("/", gateway.webListWhitelist)
	whitelist.Post("/", gateway.webAddWhitelistNumber)
	whitelist.Delete("/{id:uint64}", gateway.webDeleteWhitelistNumber)

	listen := os.Getenv("WEB_LISTEN")
	if listen == "" {
		listen = "0.0.0.0:3000"
	}

	if strings.ToLower(os.Getenv("PROXY_PROTOCOL")) == "true" {
		list, err := net.Listen("tcp", listen)
		if err != nil {
			return err
		}
		proxyListener := &proxyproto.Listener{Listener: list}
		return app.Run(iris.Listener(proxyListener))
	}
	return app.Listen(listen)
}

// authMiddleware accepts either the Basic auth API key or a bearer JWT
// signed with the shared secret.
func authMiddleware(ctx iris.Context) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		unauthorized(ctx, "Authorization header missing")
		return
	}

	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authHeader, bearerPrefix) {
		if validBearerToken(authHeader[len(bearerPrefix):]) {
			ctx.Next()
			return
		}
		unauthorized(ctx, "Invalid bearer token")
		return
	}

	expectedAPIKey := os.Getenv("API_KEY")
	if expectedAPIKey == "" {
		logf := LoggingFormat{
			Type:    "middleware_auth",
			Level:   logrus.ErrorLevel,
			Message: "API_KEY environment variable not set",
		}
		logf.Print()

		ctx.StatusCode(http.StatusInternalServerError)
		ctx.WriteString("Internal Server Error")
		return
	}

	const basicPrefix = "Basic "
	if !strings.HasPrefix(authHeader, basicPrefix) {
		unauthorized(ctx, "Invalid Authorization header format")
		return
	}

	decodedBytes, err := base64.StdEncoding.DecodeString(authHeader[len(basicPrefix):])
	if err != nil {
		unauthorized(ctx, "Failed to decode credentials")
		return
	}
	credentials := string(decodedBytes)

	// In Basic auth the credentials are "username:password"; the API key is
	// carried as the password.
	colonIndex := strings.IndexByte(credentials, ':')
	if colonIndex < 0 {
		unauthorized(ctx, "Invalid credentials format")
		return
	}

	if credentials[colonIndex+1:] != expectedAPIKey {
		unauthorized(ctx, "Invalid API key")
		return
	}

	ctx.Next()
}

// validBearerToken verifies an HS256 JWT against JWT_SECRET.
func validBearerToken(tokenString string) bool {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return false
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	return err == nil && token.Valid
}

// unauthorized responds with a 401 status and a WWW-Authenticate header.
func unauthorized(ctx iris.Context, message string) {
	logf := LoggingFormat{
		Type:    "middleware_auth",
		Level:   logrus.WarnLevel,
		Message: message,
	}
	logf.AddField("client_ip", ctx.RemoteAddr())
	logf.Print()

	ctx.Header("WWW-Authenticate", `Basic realm="Restricted"`)
	ctx.StatusCode(http.StatusUnauthorized)
	ctx.WriteString("Unauthorized")
}

func webHealthCheck(ctx iris.Context) {
	ctx.StatusCode(http.StatusOK)
	ctx.WriteString("OK")
}

// IDList accepts a single SMS id or a list of ids on the wire.
type IDList []int

func (l *IDList) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		*l = IDList{single}
		return nil
	}
	var many []int
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("sms_id must be an integer or a list of integers")
	}
	*l = IDList(many)
	return nil
}

// readJSONBody decodes the request body into dst, tolerating an empty body
// so that host-less requests need no payload at all.
func readJSONBody(ctx iris.Context, dst interface{}) error {
	if ctx.GetContentLength() == 0 {
		return nil
	}
	return ctx.ReadJSON(dst)
}

// writeServiceError maps the typed error set onto HTTP statuses: target
// resolution failures are the caller's problem, communication failures are
// the modem's.
func writeServiceError(ctx iris.Context, err error) {
	var (
		noModem *NoModemConfiguredError
		ambig   *AmbiguousModemTargetError
		missing *ModemNotFoundError
		comm    *ModemCommunicationError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &noModem), errors.As(err, &ambig), errors.As(err, &missing):
		status = http.StatusBadRequest
	case errors.As(err, &comm):
		status = http.StatusBadGateway
	}

	logf := LoggingFormat{
		Type:    LogType.Service,
		Level:   logrus.ErrorLevel,
		Message: "service call failed",
		Error:   err,
	}
	logf.AddField("status", status)
	logf.Print()

	ctx.StatusCode(status)
	ctx.JSON(iris.Map{"error": err.Error()})
}

func (gateway *Gateway) webListInbox(ctx iris.Context) {
	var req struct {
		Host string `json:"host"`
	}
	if err := readJSONBody(ctx, &req); err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}

	host, messages, err := gateway.ListInbox(ctx.Request().Context(), req.Host)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"host": host, "messages": messages})
}

func (gateway *Gateway) webGetInboxJSON(ctx iris.Context) {
	host, messages, err := gateway.GetInboxJSON(ctx.Request().Context(), ctx.URLParam("host"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"host": host, "messages": messages})
}

func (gateway *Gateway) webDeleteSMS(ctx iris.Context) {
	var req struct {
		Host  string `json:"host"`
		SMSID IDList `json:"sms_id"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}
	if len(req.SMSID) == 0 {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "sms_id is required"})
		return
	}

	host, result, err := gateway.DeleteSMS(ctx.Request().Context(), req.Host, req.SMSID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{
		"host":    host,
		"deleted": result.Deleted,
		"failed":  result.Failed,
	})
}

func (gateway *Gateway) webCleanupInbox(ctx iris.Context) {
	var req struct {
		Host        string   `json:"host"`
		RetainCount *int     `json:"retain_count"`
		RetainDays  *float64 `json:"retain_days"`
		Whitelist   []string `json:"whitelist"`
		DryRun      *bool    `json:"dry_run"`
	}
	if err := readJSONBody(ctx, &req); err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}

	policy := CleanupPolicy{
		RetainCount: DefaultRetainCount,
		RetainDays:  DefaultRetainDays,
		Whitelist:   req.Whitelist,
		DryRun:      DefaultDryRun,
	}
	if req.RetainCount != nil {
		policy.RetainCount = *req.RetainCount
	}
	if req.RetainDays != nil {
		policy.RetainDays = *req.RetainDays
	}
	if req.DryRun != nil {
		policy.DryRun = *req.DryRun
	}
	if policy.RetainCount < 0 || policy.RetainDays < 0 {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "retain_count and retain_days must not be negative"})
		return
	}

	host, result, err := gateway.CleanupInbox(ctx.Request().Context(), req.Host, policy)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{
		"host":          host,
		"count_deleted": result.CountDeleted,
		"deleted_ids":   result.DeletedIDs,
		"dry_run":       result.DryRun,
	})
}

func (gateway *Gateway) webForwardSMS(ctx iris.Context) {
	var req struct {
		Host  string `json:"host"`
		SMSID int    `json:"sms_id"`
		To    string `json:"to"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}
	if req.To == "" {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "to is required"})
		return
	}

	host, sid, err := gateway.ForwardSMS(ctx.Request().Context(), req.Host, req.SMSID, req.To)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"host": host, "sms_id": req.SMSID, "to": req.To, "sid": sid})
}

// requireStore guards the contact endpoints when no database is configured.
func (gateway *Gateway) requireStore(ctx iris.Context) *ContactStore {
	if gateway.Store == nil {
		ctx.StatusCode(http.StatusServiceUnavailable)
		ctx.JSON(iris.Map{"error": "contact storage is not configured (set DATABASE_URL)"})
		return nil
	}
	return gateway.Store
}

func (gateway *Gateway) webListContacts(ctx iris.Context) {
	store := gateway.requireStore(ctx)
	if store == nil {
		return
	}

	contacts, err := store.Contacts()
	if err != nil {
		ctx.StatusCode(http.StatusInternalServerError)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}
	ctx.JSON(iris.Map{"contacts": contacts})
}

func (gateway *Gateway) webAddContact(ctx iris.Context) {
	store := gateway.requireStore(ctx)
	if store == nil {
		return
	}

	var req struct {
		Name        string `json:"name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}

	contact, err := store.AddContact(req.Name, req.PhoneNumber)
	if err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}

	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(contact)
}

func (gateway *Gateway) webDeleteContact(ctx iris.Context) {
	store := gateway.requireStore(ctx)
	if store == nil {
		return
	}

	if err := store.DeleteContact(ctx.Params().Get("id")); err != nil {
		ctx.StatusCode(http.StatusNotFound)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}
	ctx.StatusCode(http.StatusNoContent)
}

func (gateway *Gateway) webImportContacts(ctx iris.Context) {
	store := gateway.requireStore(ctx)
	if store == nil {
		return
	}

	body, err := ctx.GetBody()
	if err != nil || len(body) == 0 {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "request body is required"})
		return
	}

	imported, err := store.ImportContacts(body)
	if err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error(), "imported": imported})
		return
	}

	ctx.JSON(iris.Map{"imported": imported})
}

func (gateway *Gateway) webListWhitelist(ctx iris.Context) {
	store := gateway.requireStore(ctx)
	if store == nil {
		return
	}

	numbers, err := store.WhitelistNumbers()
	if err != nil {
		ctx.StatusCode(http.StatusInternalServerError)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}
	ctx.JSON(iris.Map{"whitelist_numbers": numbers})
}

func (gateway *Gateway) webAddWhitelistNumber(ctx iris.Context) {
	store := gateway.requireStore(ctx)
	if store == nil {
		return
	}

	var req struct {
		Number string `json:"number"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}

	entry, err := store.AddWhitelistNumber(req.Number)
	if err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}

	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(entry)
}

func (gateway *Gateway) webDeleteWhitelistNumber(ctx iris.Context) {
	store := gateway.requireStore(ctx)
	if store == nil {
		return
	}

	id, err := strconv.ParseUint(ctx.Params().Get("id"), 10, 32)
	if err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "invalid whitelist id"})
		return
	}

	if err := store.DeleteWhitelistNumber(uint(id)); err != nil {
		ctx.StatusCode(http.StatusNotFound)
		ctx.JSON(iris.Map{"error": err.Error()})
		return
	}
	ctx.StatusCode(http.StatusNoContent)
}
