package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/attendance"
	"github.com/darasahq/darasa/core/student"
)

type attendanceApi struct {
	logger   core.Logger
	service  *attendance.Service
	feed     attendance.Feed
	students student.Repository
}

func registerAttendanceAPI(g *echo.Group, opts *Options) {
	api := attendanceApi{
		logger:   opts.Logger,
		service:  opts.AttendanceSvc,
		feed:     opts.Feed,
		students: opts.StudentRepo,
	}

	cg := g.Group("/courses/:id/attendance")
	cg.GET("", api.courseAttendance)
	cg.POST("/:date", api.mark)
	cg.PUT("/:date", api.update)
	cg.GET("/:date", api.byDate)

	sg := g.Group("/students/:id/attendance")
	sg.GET("", api.studentSummary)
	sg.GET("/stream", api.studentStream)
}

// Handlers

type markRequest struct {
	PresentStudentIDs []string `json:"present_student_ids"`
	MarkedBy          string   `json:"marked_by"`
	MarkedByRole      string   `json:"marked_by_role"`
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	data := new(markRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}

	ru, err := api.service.Mark(ctx.Request().Context(), attendance.MarkAttendance{
		CourseID:          ctx.Param("id"),
		Date:              ctx.Param("date"),
		PresentStudentIDs: data.PresentStudentIDs,
		MarkedBy:          data.MarkedBy,
		MarkedByRole:      data.MarkedByRole,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, ru)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	data := new(markRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}

	ru, err := api.service.Update(ctx.Request().Context(), attendance.MarkAttendance{
		CourseID:          ctx.Param("id"),
		Date:              ctx.Param("date"),
		PresentStudentIDs: data.PresentStudentIDs,
		MarkedBy:          data.MarkedBy,
		MarkedByRole:      data.MarkedByRole,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ru)
}

func (api *attendanceApi) byDate(ctx echo.Context) error {
	ru, err := api.service.GetByDate(ctx.Request().Context(), ctx.Param("id"), ctx.Param("date"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ru)
}

func (api *attendanceApi) courseAttendance(ctx echo.Context) error {
	rus, err := api.service.GetCourseAttendance(ctx.Request().Context(), ctx.Param("id"), queryRange(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rus)
}

func (api *attendanceApi) studentSummary(ctx echo.Context) error {
	sums, err := api.service.GetStudentSummary(ctx.Request().Context(), ctx.Param("id"), queryRange(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sums)
}

// studentStream pushes live monthly/weekly view updates over SSE. One
// Watcher per stream; torn down when the client goes away.
func (api *attendanceApi) studentStream(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	std, err := api.students.GetStudentByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	view := core.CleanString(ctx.QueryParam("view"), true /* lower */)
	if view == "" {
		view = "monthly"
	}
	if view != "monthly" && view != "weekly" {
		return core.NewValidationError(nil, core.FieldError{Field: "view", Error: "view must be monthly or weekly"})
	}

	w := attendance.NewWatcher(api.logger, api.feed, attendance.WatcherOptions{
		Subject: attendance.Subject{ID: std.ID, RegNo: std.RegNo},
	})
	defer func() { _ = w.Close() }()

	if err = w.Watch(reqCtx, streamQuery(attendance.NowFunc())); err != nil {
		return err
	}

	events := make(chan interface{}, 8)
	var unsubscribe func()
	if view == "weekly" {
		unsubscribe = w.SubscribeWeekly(func(days []attendance.DailyFact) {
			select {
			case events <- days:
			default:
			}
		})
	} else {
		unsubscribe = w.SubscribeMonthly(func(sum attendance.MonthlySummary) {
			select {
			case events <- sum:
			default:
			}
		})
	}
	defer unsubscribe()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	enc := json.NewEncoder(res)
	for {
		select {
		case <-reqCtx.Done():
			return nil
		case ev := <-events:
			if _, err = fmt.Fprint(res, "data: "); err != nil {
				return nil
			}
			if err = enc.Encode(ev); err != nil {
				return nil
			}
			if _, err = fmt.Fprint(res, "\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// streamQuery is the stream's subscription window: the current month padded
// a week on both sides so the weekly view still covers a week straddling the
// month boundary.
func streamQuery(now time.Time) attendance.Query {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return attendance.Query{
		From: first.AddDate(0, 0, -7).Format(attendance.DayLayout),
		To:   last.AddDate(0, 0, 7).Format(attendance.DayLayout),
	}
}

func queryRange(ctx echo.Context) *attendance.DateRange {
	from := core.CleanString(ctx.QueryParam("from"))
	to := core.CleanString(ctx.QueryParam("to"))
	if from == "" && to == "" {
		return nil
	}
	return &attendance.DateRange{From: from, To: to}
}
