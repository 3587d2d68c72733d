package web

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"BollWatch/internal/credential"
	"BollWatch/internal/model"
	"BollWatch/internal/report"
	"BollWatch/internal/scanner"
	"BollWatch/internal/store"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": s.deps.Runner.State()})
}

func (s *Server) dashboard(c *gin.Context) {
	r, err := s.deps.Store.Get(c.Request.Context())
	if errors.Is(err, store.ErrNotFound) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(report.RenderEmpty(s.deps.Title)))
		return
	}
	if err != nil {
		log.Printf("[ERROR] dashboard: read report: %v", err)
		c.String(http.StatusInternalServerError, "failed to load report")
		return
	}
	page, err := report.RenderHTML(r, s.deps.Title)
	if err != nil {
		log.Printf("[ERROR] dashboard: %v", err)
		c.String(http.StatusInternalServerError, "failed to render report")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (s *Server) getReport(c *gin.Context) {
	r, err := s.deps.Store.Get(c.Request.Context())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) trigger(c *gin.Context) {
	err := s.deps.Runner.Trigger(model.TriggerManual)
	if errors.Is(err, scanner.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"status": "already_running"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type lastRun struct {
	RunID      string          `json:"run_id"`
	Trigger    model.Trigger   `json:"trigger"`
	Status     model.RunStatus `json:"status"`
	FinishedAt time.Time       `json:"finished_at"`
	OK         int             `json:"ok"`
	Failed     int             `json:"failed"`
}

func (s *Server) status(c *gin.Context) {
	resp := gin.H{"state": s.deps.Runner.State()}
	if s.deps.Schedule != nil {
		resp["schedule"] = s.deps.Schedule.Spec()
		if next := s.deps.Schedule.NextRun(); !next.IsZero() {
			resp["next_run"] = next
		}
	}
	if r, err := s.deps.Store.Get(c.Request.Context()); err == nil {
		ok, failed := r.Counts()
		resp["last_run"] = lastRun{RunID: r.RunID, Trigger: r.Trigger, Status: r.Status, FinishedAt: r.FinishedAt, OK: ok, Failed: failed}
	}
	if s.deps.Tokens != nil {
		cred := s.deps.Tokens.Current()
		resp["credential"] = gin.H{
			"version":    cred.Version,
			"token":      cred.MaskedToken(),
			"expires_at": cred.ExpiresAt,
			"expired":    cred.Expired(time.Now()),
			"updated_at": cred.UpdatedAt,
		}
	}
	c.JSON(http.StatusOK, resp)
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
	Code     string `json:"code"`
}

func (s *Server) login(c *gin.Context) {
	auth := s.deps.Auth
	if !auth.Enabled() {
		c.JSON(http.StatusForbidden, gin.H{"error": ErrAuthDisabled.Error()})
		return
	}
	ip := c.ClientIP()
	if ok, wait := auth.limiter.Check(ip); !ok {
		c.Header("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": fmt.Sprintf("too many attempts, retry in %d minutes", int(wait.Minutes())+1)})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	token, exp, err := auth.Login(req.Password, req.Code)
	if err != nil {
		auth.limiter.Record(ip, false)
		log.Printf("[WARN] failed token-update login from %s: %v", ip, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	auth.limiter.Record(ip, true)
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp})
}

type tokenRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

func (s *Server) updateToken(c *gin.Context) {
	if s.deps.Tokens == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no credential store"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "access_token is required"})
		return
	}
	cred, err := s.deps.Tokens.Update(req.AccessToken)
	if errors.Is(err, credential.ErrEmptyToken) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("[ERROR] update token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Printf("[INFO] access token updated to version %d (%s)", cred.Version, cred.MaskedToken())
	c.JSON(http.StatusOK, gin.H{
		"version":    cred.Version,
		"token":      cred.MaskedToken(),
		"expires_at": cred.ExpiresAt,
	})
}

type scheduleRequest struct {
	Cron string `json:"cron" binding:"required"`
}

func (s *Server) reschedule(c *gin.Context) {
	if s.deps.Schedule == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no scheduler"})
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cron is required"})
		return
	}
	if err := s.deps.Schedule.Reschedule(strings.TrimSpace(req.Cron)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cron": s.deps.Schedule.Spec(), "next_run": s.deps.Schedule.NextRun()})
}

func (s *Server) tokenPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(tokenPageHTML))
}

const tokenPageHTML = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>更新访问令牌</title>
<style>
body { font-family: -apple-system, "Segoe UI", "PingFang SC", sans-serif; max-width: 480px; margin: 40px auto; padding: 0 16px; }
label { display: block; margin-top: 12px; }
input, textarea { width: 100%; box-sizing: border-box; padding: 8px; }
button { margin-top: 16px; padding: 8px 16px; }
#msg { margin-top: 16px; }
</style>
</head>
<body>
<h1>更新访问令牌</h1>
<form id="f">
  <label>密码 <input type="password" id="password" required></label>
  <label>动态码 (可选) <input type="text" id="code" inputmode="numeric" autocomplete="one-time-code"></label>
  <label>新令牌 <textarea id="token" rows="4" required></textarea></label>
  <button type="submit">更新</button>
</form>
<div id="msg"></div>
<script>
document.getElementById('f').addEventListener('submit', async (e) => {
  e.preventDefault();
  const msg = document.getElementById('msg');
  const post = (url, body, headers) => fetch(url, {method: 'POST', headers: Object.assign({'Content-Type': 'application/json'}, headers || {}), body: JSON.stringify(body)});
  let r = await post('/api/login', {password: document.getElementById('password').value, code: document.getElementById('code').value});
  let j = await r.json();
  if (!r.ok) { msg.textContent = '❌ ' + j.error; return; }
  r = await post('/api/token', {access_token: document.getElementById('token').value}, {'Authorization': 'Bearer ' + j.token});
  j = await r.json();
  msg.textContent = r.ok ? '✅ 令牌已更新 (版本 ' + j.version + ')' : '❌ ' + j.error;
});
</script>
</body>
</html>
`
