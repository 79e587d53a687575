package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/assurdata/agence_backend/exports"
	"bitbucket.org/assurdata/agence_backend/middlewares"
	"bitbucket.org/assurdata/agence_backend/models"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

func registerRoutes(r *gin.Engine) {
	r.POST("/auth/login", loginHandler)

	api := r.Group("/api", middlewares.RequireUser())
	{
		api.POST("/auth/logout", logoutHandler)

		api.GET("/sessions", listSessionsHandler)
		api.GET("/sessions/:date", getSessionHandler)
		api.POST("/sessions/:date/ensure", ensureSessionHandler)
		api.PUT("/sessions/:date/remark", setSessionRemarkHandler)
		api.PUT("/sessions/:date/charges", setSessionChargesHandler)
		api.POST("/sessions/deposit", recordDepositHandler)

		api.GET("/period-balances/:date", getPeriodBalanceHandler)
		api.GET("/period-balances/:date/previous", previousPeriodBalanceHandler)
		api.PUT("/period-balances/:date", updatePeriodBalanceHandler)

		api.GET("/movements", listCashMovementsHandler)
		api.POST("/movements/exceptional-receipt", exceptionalReceiptHandler)
		api.POST("/movements/disbursement", disbursementHandler)

		api.POST("/credits", createCreditHandler)
		api.GET("/credits", listCreditsHandler)
		api.POST("/credits/:id/payments", applyCreditPaymentHandler)
		api.GET("/credits/:id/payments", listCreditPaymentsHandler)
		api.GET("/credits/:id/verify", verifyCreditHandler)

		api.POST("/contracts", createContractHandler)
		api.GET("/contracts/:number", getContractHandler)
		api.GET("/termes/due", listTermesDueHandler)
		api.POST("/termes/:id/collect", collectTermeHandler)

		api.GET("/cheques", listChequesHandler)
		api.POST("/cheques/:id/transition", transitionChequeHandler)
		api.POST("/cheques/:id/scan", uploadChequeScanHandler)
		api.GET("/cheques/:id/scan-url", chequeScanURLHandler)

		api.POST("/expenses", createExpenseHandler)
		api.GET("/expenses", listExpensesHandler)

		api.GET("/quinzaines", listQuinzainesHandler)
		api.POST("/quinzaines", upsertQuinzaineHandler)
		api.POST("/quinzaines/:id/settle", settleQuinzaineHandler)

		api.GET("/outbox/:type/:id", outboxStatusHandler)

		api.GET("/exports/sessions", exportSessionsHandler)
		api.GET("/exports/termes-due", exportTermesDueHandler)
		api.GET("/exports/quinzaines", exportQuinzainesHandler)
	}

	admin := r.Group("/admin", middlewares.RequireUser(), middlewares.RequireAdmin())
	{
		admin.POST("/users", createUserHandler)
		admin.GET("/sessions/verify", verifySessionsHandler)
		admin.POST("/sessions/:date/sync", syncSessionHandler)
		admin.POST("/outbox/:type/:id/reprocess", outboxReprocessHandler)
		admin.POST("/outbox/replay", outboxReplayHandler())
	}
}

// respondError maps domain errors onto HTTP statuses: validation failures
// are the caller's fault, missing records are 404, everything else is 500.
func respondError(c *gin.Context, err error) {
	if utils.IsValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	_ = c.Error(err)
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return false
	}
	return true
}

// dateParam parses a YYYY-MM-DD path segment into an operating day.
func dateParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Param(name)
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	day, err := utils.ConvertToDate(t, "")
	if err != nil {
		respondError(c, err)
		return time.Time{}, false
	}
	return day, true
}

func dateQuery(c *gin.Context, name string, fallback time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + ", expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	day, err := utils.ConvertToDate(t, "")
	if err != nil {
		respondError(c, err)
		return time.Time{}, false
	}
	return day, true
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func businessDay(c *gin.Context) time.Time {
	if day, ok := utils.GetBusinessDateFromContext(c.Request.Context()); ok {
		return day
	}
	day, _ := utils.ConvertToDate(time.Now(), "")
	return day
}

func loginHandler(c *gin.Context) {
	var input models.LoginInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := models.Login(c.Request.Context(), &input)
	if err != nil {
		if utils.IsValidationError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func logoutHandler(c *gin.Context) {
	if err := models.Logout(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func listSessionsHandler(c *gin.Context) {
	today := businessDay(c)
	from, ok := dateQuery(c, "from", today.AddDate(0, -1, 0))
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to", today)
	if !ok {
		return
	}
	sessions, err := models.ListSessions(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func getSessionHandler(c *gin.Context) {
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}
	session, err := models.GetSessionByDate(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func ensureSessionHandler(c *gin.Context) {
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}
	session, err := models.EnsureSession(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type sessionRemarkRequest struct {
	Remark *string `json:"remark"`
}

func setSessionRemarkHandler(c *gin.Context) {
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}
	var req sessionRemarkRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := models.SetSessionRemark(c.Request.Context(), day, req.Remark)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type sessionChargesRequest struct {
	Charges decimal.Decimal `json:"charges"`
}

func setSessionChargesHandler(c *gin.Context) {
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}
	var req sessionChargesRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := models.SetSessionCharges(c.Request.Context(), day, req.Charges)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func recordDepositHandler(c *gin.Context) {
	var input models.DepositInput
	if !bindJSON(c, &input) {
		return
	}
	results, err := models.RecordDeposit(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func verifySessionsHandler(c *gin.Context) {
	discrepancies, err := models.VerifyAndReconcile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, discrepancies)
}

func syncSessionHandler(c *gin.Context) {
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}
	session, err := models.SyncSession(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func getPeriodBalanceHandler(c *gin.Context) {
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}
	balance, err := models.EnsurePeriodBalance(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func previousPeriodBalanceHandler(c *gin.Context) {
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}
	balance, err := models.PreviousPeriodBalance(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func updatePeriodBalanceHandler(c *gin.Context) {
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}
	var input models.PeriodBalanceInput
	if !bindJSON(c, &input) {
		return
	}
	balance, err := models.UpdatePeriodBalance(c.Request.Context(), day, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func listCashMovementsHandler(c *gin.Context) {
	day, ok := dateQuery(c, "date", businessDay(c))
	if !ok {
		return
	}
	movements, err := models.ListCashMovements(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

func exceptionalReceiptHandler(c *gin.Context) {
	var input models.NewCashMovement
	if !bindJSON(c, &input) {
		return
	}
	movement, err := models.RecordExceptionalReceipt(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func disbursementHandler(c *gin.Context) {
	var input models.NewCashMovement
	if !bindJSON(c, &input) {
		return
	}
	movement, err := models.RecordDisbursement(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func createCreditHandler(c *gin.Context) {
	var input models.NewCredit
	if !bindJSON(c, &input) {
		return
	}
	credit, err := models.CreateCredit(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, credit)
}

func listCreditsHandler(c *gin.Context) {
	var status *models.CreditStatus
	if raw := c.Query("status"); raw != "" {
		s := models.CreditStatus(raw)
		status = &s
	}
	credits, err := models.ListCredits(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, credits)
}

func applyCreditPaymentHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewCreditPayment
	if !bindJSON(c, &input) {
		return
	}
	credit, err := models.ApplyCreditPayment(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, credit)
}

func listCreditPaymentsHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	payments, err := models.ListCreditPayments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func verifyCreditHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	amount, err := utils.ParseDecimal(c.Query("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	verification, err := models.VerifyCredit(c.Request.Context(), id, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func createContractHandler(c *gin.Context) {
	var input models.NewContract
	if !bindJSON(c, &input) {
		return
	}
	contract, err := models.CreateContract(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

func getContractHandler(c *gin.Context) {
	contract, err := models.GetContractByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func listTermesDueHandler(c *gin.Context) {
	day, ok := dateQuery(c, "date", businessDay(c))
	if !ok {
		return
	}
	termes, err := models.ListTermesDue(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, termes)
}

func collectTermeHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.CollectTermeInput
	if !bindJSON(c, &input) {
		return
	}
	terme, err := models.CollectTerme(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, terme)
}

func listChequesHandler(c *gin.Context) {
	var status *models.ChequeStatus
	if raw := c.Query("status"); raw != "" {
		s := models.ChequeStatus(raw)
		status = &s
	}
	cheques, err := models.ListCheques(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cheques)
}

type chequeTransitionRequest struct {
	To models.ChequeStatus `json:"to" binding:"required"`
}

func transitionChequeHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req chequeTransitionRequest
	if !bindJSON(c, &req) {
		return
	}
	cheque, err := models.TransitionCheque(c.Request.Context(), id, req.To)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cheque)
}

func createExpenseHandler(c *gin.Context) {
	var input models.NewExpense
	if !bindJSON(c, &input) {
		return
	}
	expense, err := models.CreateExpense(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

func listExpensesHandler(c *gin.Context) {
	today := businessDay(c)
	from, ok := dateQuery(c, "from", today.AddDate(0, -1, 0))
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to", today)
	if !ok {
		return
	}
	expenses, err := models.ListExpenses(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func listQuinzainesHandler(c *gin.Context) {
	today := businessDay(c)
	start, ok := dateQuery(c, "start", today.AddDate(0, -3, 0))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.ListQuinzaines(start, today))
}

type quinzaineUpsertRequest struct {
	Date  time.Time       `json:"date" binding:"required"`
	Gross decimal.Decimal `json:"gross"`
}

func upsertQuinzaineHandler(c *gin.Context) {
	var req quinzaineUpsertRequest
	if !bindJSON(c, &req) {
		return
	}
	day, err := utils.ConvertToDate(req.Date, "")
	if err != nil {
		respondError(c, err)
		return
	}
	window := models.QuinzaineWindowFor(day)
	quinzaine, err := models.UpsertQuinzaine(c.Request.Context(), window, &models.QuinzaineInput{Gross: req.Gross})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quinzaine)
}

func settleQuinzaineHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.SettleQuinzaineInput
	if !bindJSON(c, &input) {
		return
	}
	quinzaine, err := models.SettleQuinzaine(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quinzaine)
}

func outboxRefParams(c *gin.Context) (models.ReferenceType, int, bool) {
	refType := models.ReferenceType(c.Param("type"))
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reference id"})
		return "", 0, false
	}
	return refType, id, true
}

func outboxStatusHandler(c *gin.Context) {
	refType, id, ok := outboxRefParams(c)
	if !ok {
		return
	}
	status, err := models.GetOutboxStatus(c.Request.Context(), refType, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func outboxReprocessHandler(c *gin.Context) {
	refType, id, ok := outboxRefParams(c)
	if !ok {
		return
	}
	status, err := models.ReprocessOutbox(c.Request.Context(), refType, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func exportSessionsHandler(c *gin.Context) {
	today := businessDay(c)
	from, ok := dateQuery(c, "from", today.AddDate(0, -1, 0))
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to", today)
	if !ok {
		return
	}
	f, name, err := exports.SessionsLedger(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	serveExport(c, f, name)
}

func exportTermesDueHandler(c *gin.Context) {
	day, ok := dateQuery(c, "date", businessDay(c))
	if !ok {
		return
	}
	f, name, err := exports.TermesDue(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	serveExport(c, f, name)
}

func exportQuinzainesHandler(c *gin.Context) {
	today := businessDay(c)
	start, ok := dateQuery(c, "start", today.AddDate(0, -3, 0))
	if !ok {
		return
	}
	f, name, err := exports.QuinzaineSummary(c.Request.Context(), start, today)
	if err != nil {
		respondError(c, err)
		return
	}
	serveExport(c, f, name)
}

// serveExport either streams the workbook or, with ?archive=true, stores it
// in the reports bucket and returns a signed download URL.
func serveExport(c *gin.Context, f *exports.Workbook, name string) {
	if c.Query("archive") == "true" {
		url, err := exports.Archive(c.Request.Context(), f, name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url, "filename": name})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}
