package tools

import (
	"context"
	"strings"

	"github.com/chuangyeshuo/mcprapi/internal/upstream"
)

type userView struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	DeptID    int64  `json:"dept_id"`
	Status    int    `json:"status"`
	CreatedAt string `json:"created_at"`
}

type departmentStatsView struct {
	Department    string `json:"department"`
	DepartmentID  int64  `json:"department_id"`
	Code          string `json:"code"`
	Level         int    `json:"level"`
	Status        int    `json:"status"`
	EmployeeCount int64  `json:"employee_count"`
}

func (r *Runner) userInfo(ctx context.Context, inv Invocation) (string, error) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeArgsStrict(inv.Arguments, &req); err != nil {
		return "", err
	}
	if req.UserID <= 0 {
		return "", validationErrorf("user_id must be a positive integer")
	}

	user, err := r.business.GetUser(ctx, req.UserID, inv.Credential)
	if upstream.IsNotFound(err) {
		return "", notFoundErrorf("user %d not found", req.UserID)
	}
	if err != nil {
		return "", mapExecutionError(err, "looking up user")
	}

	return renderJSON(userView{
		UserID:    user.ID,
		Username:  user.Username,
		Name:      user.Name,
		Email:     user.Email,
		DeptID:    user.DeptID,
		Status:    user.Status,
		CreatedAt: user.CreatedAt,
	})
}

func (r *Runner) departmentStats(ctx context.Context, inv Invocation) (string, error) {
	var req struct {
		Department string `json:"department"`
	}
	if err := decodeArgsStrict(inv.Arguments, &req); err != nil {
		return "", err
	}
	query := strings.TrimSpace(req.Department)
	if query == "" {
		return "", validationErrorf("department is required")
	}

	departments, err := r.business.FindDepartments(ctx, query, inv.Credential)
	if err != nil {
		return "", mapExecutionError(err, "looking up department")
	}
	department, ok := pickDepartment(departments, query)
	if !ok {
		return "", notFoundErrorf("department %s not found", query)
	}

	count, err := r.business.CountUsers(ctx, department.ID, inv.Credential)
	if err != nil {
		return "", mapExecutionError(err, "counting department members")
	}

	return renderJSON(departmentStatsView{
		Department:    department.Name,
		DepartmentID:  department.ID,
		Code:          department.Code,
		Level:         department.Level,
		Status:        department.Status,
		EmployeeCount: count,
	})
}

// pickDepartment prefers an exact name or code match over the first fuzzy hit.
func pickDepartment(departments []upstream.Department, query string) (upstream.Department, bool) {
	if len(departments) == 0 {
		return upstream.Department{}, false
	}
	for _, department := range departments {
		if strings.EqualFold(department.Name, query) || strings.EqualFold(department.Code, query) {
			return department, true
		}
	}
	return departments[0], true
}
