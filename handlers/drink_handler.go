package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"

	"drinkLogAPI/internal/csvio"
	"drinkLogAPI/internal/drink"
	"drinkLogAPI/internal/stats"
	"drinkLogAPI/middleware"
	"drinkLogAPI/services"
)

const maxImportSize = 5 << 20

type DrinkHandler struct {
	manager *services.DrinkLogManager
	loc     *time.Location
	now     func() time.Time
}

func NewDrinkHandler(manager *services.DrinkLogManager, loc *time.Location) *DrinkHandler {
	if loc == nil {
		loc = time.Local
	}
	return &DrinkHandler{
		manager: manager,
		loc:     loc,
		now:     time.Now,
	}
}

func (h *DrinkHandler) today() civil.Date {
	return drink.Today(h.now(), h.loc)
}

// drinkLog resolves the caller's session, writing the error response itself
// when it cannot.
func (h *DrinkHandler) drinkLog(ctx context.Context, w http.ResponseWriter) (*services.DrinkLog, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}

	l, err := h.manager.Get(ctx, clerkID)
	if err != nil {
		log.Printf("DrinkHandler: failed to load drink log for %s: %v", clerkID, err)
		respondWithError(w, http.StatusServiceUnavailable, "Could not fetch your drink history.")
		return nil, false
	}
	return l, true
}

func (h *DrinkHandler) GetDrinks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	l, ok := h.drinkLog(ctx, w)
	if !ok {
		return
	}

	records := l.Records()
	if records == nil {
		records = []drink.Record{}
	}
	respondWithJSON(w, http.StatusOK, records)
}

type statsResponse struct {
	*stats.DerivedStats
	WeatherMessage string     `json:"weather_message"`
	Today          civil.Date `json:"today"`
}

func (h *DrinkHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	l, ok := h.drinkLog(ctx, w)
	if !ok {
		return
	}

	today := h.today()
	st := l.Stats(today)
	respondWithJSON(w, http.StatusOK, statsResponse{
		DerivedStats:   st,
		WeatherMessage: st.Weather.Message(),
		Today:          today,
	})
}

// SetDrinks handles PUT /drinks/{date}. The store confirms the change
// asynchronously, so the response is 202 with the plan that was issued.
func (h *DrinkHandler) SetDrinks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	date, err := civil.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	var req struct {
		Count *int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Count == nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	l, ok := h.drinkLog(ctx, w)
	if !ok {
		return
	}

	plan, err := l.SetDrinksForDate(ctx, date, *req.Count)
	if err != nil {
		log.Printf("DrinkHandler: set %s to %d failed: %v", date, *req.Count, err)
		msg := "Failed to add drinks."
		if len(plan.Delete) > 0 {
			msg = "Failed to remove drinks."
		}
		respondWithError(w, http.StatusBadGateway, msg)
		return
	}

	respondWithJSON(w, http.StatusAccepted, plan)
}

// ImportDrinks accepts the CSV as the raw body or as the "file" field of a
// multipart form.
func (h *DrinkHandler) ImportDrinks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	l, ok := h.drinkLog(ctx, w)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondWithError(w, http.StatusRequestEntityTooLarge, "Import failed: file too large")
				return
			}
			respondWithError(w, http.StatusBadRequest, "Missing CSV file")
			return
		}
		defer file.Close()
		body = file
	}

	n, err := l.ImportDrinks(ctx, body)
	if err != nil {
		var lineErr *csvio.LineError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, csvio.ErrInvalidHeader), errors.As(err, &lineErr):
			respondWithError(w, http.StatusBadRequest, "Import failed: "+err.Error())
		case errors.As(err, &tooLarge):
			respondWithError(w, http.StatusRequestEntityTooLarge, "Import failed: file too large")
		default:
			log.Printf("DrinkHandler: import failed: %v", err)
			respondWithError(w, http.StatusBadGateway, "Import failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"imported": n,
		"message":  fmt.Sprintf("%d records imported successfully!", n),
	})
}

func (h *DrinkHandler) ExportDrinks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	l, ok := h.drinkLog(ctx, w)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := l.ExportCSV(ctx, &buf); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "You don't have any data to export yet.")
			return
		}
		log.Printf("DrinkHandler: export failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to export drinks")
		return
	}

	writeCSV(w, "drink_history.csv", buf.Bytes())
}

func (h *DrinkHandler) ExportTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := csvio.Template(&buf); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to build template")
		return
	}
	writeCSV(w, "drink_history_template.csv", buf.Bytes())
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetCalendar defaults to the current month.
func (h *DrinkHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	today := h.today()
	year, err := intQuery(r, "year", today.Year)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid year")
		return
	}
	month, err := intQuery(r, "month", int(today.Month))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid month")
		return
	}

	l, ok := h.drinkLog(ctx, w)
	if !ok {
		return
	}

	cal, err := l.Calendar(year, month, today)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, cal)
}

func (h *DrinkHandler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	year, err := intQuery(r, "year", h.today().Year)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid year")
		return
	}

	l, ok := h.drinkLog(ctx, w)
	if !ok {
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"year":   year,
		"months": l.Heatmap(year),
	})
}

func (h *DrinkHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	period, err := stats.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, ok := h.drinkLog(ctx, w)
	if !ok {
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"period": period,
		"points": l.Chart(period, h.today()),
	})
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
