package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"raiseflow/models"
	"raiseflow/utils"
	"raiseflow/worker"
)

// SequenceRunner is the scheduler surface the controller drives.
type SequenceRunner interface {
	ProcessDue(ctx context.Context) (*worker.BatchResult, error)
	Stats(ctx context.Context) (*worker.ProcessingStats, error)
}

// EnrollmentOperator applies operator status changes.
type EnrollmentOperator interface {
	Pause(ctx context.Context, id uint) (*models.Enrollment, error)
	Resume(ctx context.Context, id uint) (*models.Enrollment, error)
	Cancel(ctx context.Context, id uint) (*models.Enrollment, error)
	Retry(ctx context.Context, id uint) (*models.Enrollment, error)
}

type SequenceController struct {
	runner      SequenceRunner
	enrollments EnrollmentOperator
	log         *logrus.Entry
}

func NewSequenceController(runner SequenceRunner, enrollments EnrollmentOperator, log *logrus.Entry) *SequenceController {
	return &SequenceController{
		runner:      runner,
		enrollments: enrollments,
		log:         log.WithField("component", "sequence_controller"),
	}
}

// ProcessDue runs one scheduler pass and returns its summary.
func (sc *SequenceController) ProcessDue(c *fiber.Ctx) error {
	result, err := sc.runner.ProcessDue(c.UserContext())
	if err != nil {
		if errors.Is(err, worker.ErrPassInProgress) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "A scheduler pass is already running", err)
		}
		utils.LogError(sc.log, "process_due_failed", err, map[string]interface{}{"ip": c.IP()})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process due enrollments", err)
	}
	return c.JSON(utils.SuccessResponse(result))
}

func (sc *SequenceController) GetStats(c *fiber.Ctx) error {
	stats, err := sc.runner.Stats(c.UserContext())
	if err != nil {
		utils.LogError(sc.log, "stats_failed", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load processing stats", err)
	}
	return c.JSON(utils.SuccessResponse(stats))
}

func (sc *SequenceController) PauseEnrollment(c *fiber.Ctx) error {
	return sc.enrollmentAction(c, sc.enrollments.Pause)
}

func (sc *SequenceController) ResumeEnrollment(c *fiber.Ctx) error {
	return sc.enrollmentAction(c, sc.enrollments.Resume)
}

func (sc *SequenceController) CancelEnrollment(c *fiber.Ctx) error {
	return sc.enrollmentAction(c, sc.enrollments.Cancel)
}

func (sc *SequenceController) RetryEnrollment(c *fiber.Ctx) error {
	return sc.enrollmentAction(c, sc.enrollments.Retry)
}

func (sc *SequenceController) enrollmentAction(c *fiber.Ctx, op func(context.Context, uint) (*models.Enrollment, error)) error {
	id, ok := utils.ParseUint(c.Params("id"))
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid enrollment ID", nil)
	}

	enrollment, err := op(c.UserContext(), id)
	switch {
	case err == nil:
		return c.JSON(utils.SuccessResponse(enrollment))
	case errors.Is(err, worker.ErrEnrollmentNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	case errors.Is(err, worker.ErrInvalidTransition):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment cannot make that transition", err)
	case errors.Is(err, worker.ErrEnrollmentBusy):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment is being processed, try again shortly", err)
	default:
		utils.LogError(sc.log, "enrollment_action_failed", err, map[string]interface{}{"enrollment_id": id})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update enrollment", err)
	}
}
