package routes

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mbolis/quick-survey/app"
	"github.com/mbolis/quick-survey/export"
	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/log"
)

func Export(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := chi.URLParam(r, "resource")

		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "export.format", "%v", err)
			return
		}

		table, err := export.Load(r.Context(), app.DB, resource)
		if errors.Is(err, export.ErrUnknownResource) {
			httpx.LogNotFound(w, r, "export.resource", resource)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.export."+resource, err)
			return
		}

		var buf bytes.Buffer
		err = export.Encode(&buf, table, format)
		if err != nil {
			httpx.LogInternalError(w, r, "export.encode."+string(format), err)
			return
		}

		filename := format.Filename(resource + "-" + time.Now().UTC().Format("20060102"))
		w.Header().Set("content-type", format.ContentType())
		w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("content-length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		buf.WriteTo(w)

		log.WithFields(log.Fields{"resource": resource, "format": format, "rows": len(table.Rows)}).Info("export.done")
	}
}
