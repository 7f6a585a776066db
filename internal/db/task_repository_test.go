package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chepyr/go-minitask/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dbx, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// one pooled connection so every query sees the same in-memory database
	dbx.SetMaxOpenConns(1)
	if err := InitSchema(dbx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	return dbx
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func insertUser(t *testing.T, dbx *sql.DB, email string, superuser bool) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "x",
		IsSuperuser:  superuser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := NewUserRepository(dbx).Create(context.Background(), user); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return user
}

func insertProject(t *testing.T, dbx *sql.DB, title string, archived bool) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:         uuid.New(),
		Title:      title,
		IsArchived: archived,
		CreatedAt:  time.Now().UTC(),
	}
	if err := NewProjectRepository(dbx).Create(context.Background(), project); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return project
}

func addMember(t *testing.T, dbx *sql.DB, project *models.Project, user *models.User, expiresAt *time.Time) {
	t.Helper()
	membership := &models.ProjectMembership{
		ID:        uuid.New(),
		ProjectID: project.ID,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}
	if err := NewProjectRepository(dbx).AddMember(context.Background(), membership); err != nil {
		t.Fatalf("add member: %v", err)
	}
}

func insertTask(t *testing.T, dbx *sql.DB, task *models.Task) *models.Task {
	t.Helper()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusOpen
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if err := NewTaskRepository(dbx).Create(context.Background(), task); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	return task
}

func listTitles(t *testing.T, dbx *sql.DB, user *models.User, filter TaskFilter, now time.Time) []string {
	t.Helper()
	tasks, err := NewTaskRepository(dbx).List(context.Background(), user, filter, now)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	titles := make([]string, len(tasks))
	for i, task := range tasks {
		titles[i] = task.Title
	}
	return titles
}

func sameTitles(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestTaskRepository_List_Visibility(t *testing.T) {
	dbx := setupDB(t)
	now := time.Date(2020, 6, 15, 13, 45, 0, 0, time.UTC)

	member := insertUser(t, dbx, "member@example.com", false)
	expired := insertUser(t, dbx, "expired@example.com", false)
	outsider := insertUser(t, dbx, "outsider@example.com", false)
	root := insertUser(t, dbx, "root@example.com", true)

	project := insertProject(t, dbx, "Test Project", false)
	hidden := insertProject(t, dbx, "Hidden Project", false)

	addMember(t, dbx, project, member, nil)
	expiry := day(2020, 6, 14)
	addMember(t, dbx, project, expired, &expiry)

	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: member.ID, Title: "Visible Task"})
	insertTask(t, dbx, &models.Task{ProjectID: hidden.ID, CreatedBy: member.ID, Title: "Hidden Task"})

	if got := listTitles(t, dbx, member, TaskFilter{}, now); !sameTitles(got, []string{"Visible Task"}) {
		t.Errorf("member sees %v", got)
	}
	if got := listTitles(t, dbx, expired, TaskFilter{}, now); len(got) != 0 {
		t.Errorf("expired member sees %v", got)
	}
	if got := listTitles(t, dbx, outsider, TaskFilter{}, now); len(got) != 0 {
		t.Errorf("outsider sees %v", got)
	}
	if got := listTitles(t, dbx, root, TaskFilter{}, now); len(got) != 2 {
		t.Errorf("superuser sees %v", got)
	}
}

func TestTaskRepository_List_MembershipExpiresToday(t *testing.T) {
	dbx := setupDB(t)
	// mid-afternoon on the membership's last day: still active
	now := time.Date(2020, 6, 15, 15, 0, 0, 0, time.UTC)

	user := insertUser(t, dbx, "user@example.com", false)
	project := insertProject(t, dbx, "Test Project", false)
	expiry := day(2020, 6, 15)
	addMember(t, dbx, project, user, &expiry)
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: user.ID, Title: "Task"})

	if got := listTitles(t, dbx, user, TaskFilter{}, now); !sameTitles(got, []string{"Task"}) {
		t.Errorf("membership expiring today should still be active, got %v", got)
	}
}

func TestTaskRepository_List_ArchivedProjectExcludedForSuperuser(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)

	archived := insertProject(t, dbx, "Archived Project", true)
	live := insertProject(t, dbx, "Live Project", false)
	insertTask(t, dbx, &models.Task{ProjectID: archived.ID, CreatedBy: root.ID, Title: "Buried Task"})
	insertTask(t, dbx, &models.Task{ProjectID: live.ID, CreatedBy: root.ID, Title: "Normal Task"})

	got := listTitles(t, dbx, root, TaskFilter{}, time.Now().UTC())
	if !sameTitles(got, []string{"Normal Task"}) {
		t.Errorf("archived-project tasks must stay hidden even from superusers, got %v", got)
	}
	// the archived-tasks view does not resurrect them either
	got = listTitles(t, dbx, root, TaskFilter{IsArchived: true}, time.Now().UTC())
	if len(got) != 0 {
		t.Errorf("archived view leaked archived-project tasks: %v", got)
	}
}

func TestTaskRepository_List_ArchivedToggleIsExclusive(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	project := insertProject(t, dbx, "Test Project", false)

	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "Live Task"})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "Archived Task", IsArchived: true})

	if got := listTitles(t, dbx, root, TaskFilter{}, time.Now().UTC()); !sameTitles(got, []string{"Live Task"}) {
		t.Errorf("default view: %v", got)
	}
	if got := listTitles(t, dbx, root, TaskFilter{IsArchived: true}, time.Now().UTC()); !sameTitles(got, []string{"Archived Task"}) {
		t.Errorf("archived view: %v", got)
	}
}

func TestTaskRepository_List_SortByStatus(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	project := insertProject(t, dbx, "Test Project", false)

	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "open_task", Status: models.TaskStatusOpen})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "done_task", Status: models.TaskStatusDone})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "in_progress_task", Status: models.TaskStatusInProgress})

	got := listTitles(t, dbx, root, TaskFilter{}, time.Now().UTC())
	want := []string{"in_progress_task", "open_task", "done_task"}
	if !sameTitles(got, want) {
		t.Errorf("status sort: got %v, want %v", got, want)
	}
}

func TestTaskRepository_List_SortByDueDateNullsLast(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	project := insertProject(t, dbx, "Test Project", false)

	due5 := day(2020, 1, 5)
	due1 := day(2020, 1, 1)
	due10 := day(2020, 1, 10)
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "null"})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "5", DueDate: &due5})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "1", DueDate: &due1})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "10", DueDate: &due10})

	got := listTitles(t, dbx, root, TaskFilter{}, time.Now().UTC())
	want := []string{"1", "5", "10", "null"}
	if !sameTitles(got, want) {
		t.Errorf("due date sort: got %v, want %v", got, want)
	}
}

func TestTaskRepository_List_SortByPriority(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	project := insertProject(t, dbx, "Test Project", false)

	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "normal", Priority: 0})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "highest", Priority: 2})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "lowest", Priority: -2})

	got := listTitles(t, dbx, root, TaskFilter{}, time.Now().UTC())
	want := []string{"highest", "normal", "lowest"}
	if !sameTitles(got, want) {
		t.Errorf("priority sort: got %v, want %v", got, want)
	}
}

func TestTaskRepository_List_Filters(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	assignee := insertUser(t, dbx, "worker@example.com", false)
	projectA := insertProject(t, dbx, "Project A", false)
	projectB := insertProject(t, dbx, "Project B", false)

	due := day(2020, 1, 5)
	insertTask(t, dbx, &models.Task{
		ProjectID: projectA.ID, CreatedBy: root.ID, Title: "a1",
		Status: models.TaskStatusDone, DueDate: &due,
		AssigneeID: &assignee.ID, Tags: []string{"urgent", "backend"},
	})
	insertTask(t, dbx, &models.Task{
		ProjectID: projectB.ID, CreatedBy: root.ID, Title: "b1",
		Status: models.TaskStatusOpen, Tags: []string{"urgent"},
	})

	now := time.Now().UTC()
	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"by project", TaskFilter{ProjectID: &projectA.ID}, []string{"a1"}},
		{"by status", TaskFilter{Status: "done"}, []string{"a1"}},
		{"by negated status", TaskFilter{Status: "!done"}, []string{"b1"}},
		{"by assignee", TaskFilter{AssigneeID: &assignee.ID}, []string{"a1"}},
		{"by one tag", TaskFilter{Tags: []string{"urgent"}}, []string{"b1", "a1"}},
		{"by all tags", TaskFilter{Tags: []string{"urgent", "backend"}}, []string{"a1"}},
		{"by missing tag", TaskFilter{Tags: []string{"urgent", "frontend"}}, []string{}},
		{"due after inclusive", TaskFilter{DueDateAfter: &due}, []string{"a1"}},
		{"due before inclusive", TaskFilter{DueDateBefore: &due}, []string{"a1"}},
		{"no match is empty not error", TaskFilter{Status: "in_progress"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := listTitles(t, dbx, root, tt.filter, now)
			if !sameTitles(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskRepository_List_Idempotent(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	project := insertProject(t, dbx, "Test Project", false)
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "a", Status: models.TaskStatusDone})
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "b"})

	now := time.Now().UTC()
	first := listTitles(t, dbx, root, TaskFilter{}, now)
	second := listTitles(t, dbx, root, TaskFilter{}, now)
	if !sameTitles(first, second) {
		t.Errorf("same query, different results: %v then %v", first, second)
	}
}

func TestTaskRepository_GetVisible(t *testing.T) {
	dbx := setupDB(t)
	now := time.Now().UTC()

	member := insertUser(t, dbx, "member@example.com", false)
	outsider := insertUser(t, dbx, "outsider@example.com", false)
	root := insertUser(t, dbx, "root@example.com", true)

	project := insertProject(t, dbx, "Test Project", false)
	addMember(t, dbx, project, member, nil)
	task := insertTask(t, dbx, &models.Task{
		ProjectID: project.ID, CreatedBy: member.ID, Title: "Test Task",
		IsArchived: true, Tags: []string{"keep"},
	})

	repo := NewTaskRepository(dbx)

	// archived tasks are reachable by id (the detail view shows them)
	got, err := repo.GetVisible(context.Background(), task.ID, member, now)
	if err != nil {
		t.Fatalf("GetVisible for member: %v", err)
	}
	if got.Title != "Test Task" || !got.IsArchived || len(got.Tags) != 1 || got.Tags[0] != "keep" {
		t.Errorf("GetVisible mismatch: %+v", got)
	}

	// non-member and missing id are the same outcome
	if _, err := repo.GetVisible(context.Background(), task.ID, outsider, now); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("outsider expected ErrNoRows, got %v", err)
	}
	if _, err := repo.GetVisible(context.Background(), uuid.New(), member, now); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing id expected ErrNoRows, got %v", err)
	}

	// archived projects hide their tasks from everyone
	archivedProject := insertProject(t, dbx, "Archived Project", true)
	buried := insertTask(t, dbx, &models.Task{ProjectID: archivedProject.ID, CreatedBy: root.ID, Title: "Buried"})
	if _, err := repo.GetVisible(context.Background(), buried.ID, root, now); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("superuser should not see archived-project task, got %v", err)
	}
}

func TestTaskRepository_UpdateVersioned(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	project := insertProject(t, dbx, "Test Project", false)
	task := insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "Test Task"})

	repo := NewTaskRepository(dbx)

	updated := *task
	updated.Title = "New Title"
	updated.Tags = []string{"edited"}
	if err := repo.UpdateVersioned(context.Background(), &updated, 0); err != nil {
		t.Fatalf("UpdateVersioned: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("version after first update = %d, want 1", updated.Version)
	}

	// the version the first writer read is now stale
	stale := *task
	stale.Title = "Stale Title"
	err := repo.UpdateVersioned(context.Background(), &stale, 0)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	after, err := repo.GetVisible(context.Background(), task.ID, root, time.Now().UTC())
	if err != nil {
		t.Fatalf("GetVisible: %v", err)
	}
	if after.Title != "New Title" || after.Version != 1 {
		t.Errorf("conflict must not write: %+v", after)
	}
	if len(after.Tags) != 1 || after.Tags[0] != "edited" {
		t.Errorf("tags not replaced: %v", after.Tags)
	}
}

func TestTaskRepository_UpdateVersioned_NonExistent(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	project := insertProject(t, dbx, "Test Project", false)
	insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "Test Task"})

	repo := NewTaskRepository(dbx)
	ghost := &models.Task{ID: uuid.New(), ProjectID: project.ID, Title: "Ghost", Status: models.TaskStatusOpen}
	if err := repo.UpdateVersioned(context.Background(), ghost, 0); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for missing task, got %v", err)
	}
}

func TestTaskRepository_UpdateVersioned_Race(t *testing.T) {
	dbx := setupDB(t)
	root := insertUser(t, dbx, "root@example.com", true)
	project := insertProject(t, dbx, "Test Project", false)
	task := insertTask(t, dbx, &models.Task{ProjectID: project.ID, CreatedBy: root.ID, Title: "Contended"})

	repo := NewTaskRepository(dbx)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			attempt := *task
			attempt.Title = "Writer"
			results <- repo.UpdateVersioned(context.Background(), &attempt, 0)
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("race outcome: %d wins, %d conflicts; want exactly one of each", wins, conflicts)
	}

	after, err := repo.GetVisible(context.Background(), task.ID, root, time.Now().UTC())
	if err != nil {
		t.Fatalf("GetVisible: %v", err)
	}
	if after.Version != 1 {
		t.Errorf("final version = %d, want 1 (never 2)", after.Version)
	}
}
