package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Keksclan/rawrsync/catalog"
)

// fakeAPI is an in-memory stand-in for the remote resource API. It counts
// requests per route and can hold a route until released.
type fakeAPI struct {
	srv *httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	gates    map[string]chan struct{}
	arrived  map[string]chan struct{}
	nextID   int64
	users    map[int64]catalog.User
	projects map[int64]catalog.Project
	members  map[int64][]int64
	tasks    map[int64]catalog.Task
	notes    map[int64]catalog.Notification
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		hits:     make(map[string]int),
		gates:    make(map[string]chan struct{}),
		arrived:  make(map[string]chan struct{}),
		nextID:   100,
		users:    make(map[int64]catalog.User),
		projects: make(map[int64]catalog.Project),
		members:  make(map[int64][]int64),
		tasks:    make(map[int64]catalog.Task),
		notes:    make(map[int64]catalog.Notification),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects", f.listProjects)
	mux.HandleFunc("POST /api/projects", f.createProject)
	mux.HandleFunc("PUT /api/projects", f.updateProject)
	mux.HandleFunc("GET /api/projects/{id}", f.getProject)
	mux.HandleFunc("DELETE /api/projects/{id}", f.deleteProject)
	mux.HandleFunc("GET /api/projects/my-projects/{id}", f.myProjects)
	mux.HandleFunc("GET /api/projects/owned-projects/{id}", f.ownedProjects)
	mux.HandleFunc("GET /api/projects/members/{id}", f.projectMembers)
	mux.HandleFunc("POST /api/projects/add-member/{pid}/{uid}", f.addMember)

	mux.HandleFunc("GET /api/tasks", f.listTasks)
	mux.HandleFunc("POST /api/tasks", f.createTask)
	mux.HandleFunc("PUT /api/tasks", f.updateTask)
	mux.HandleFunc("GET /api/tasks/{id}", f.getTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", f.deleteTask)
	mux.HandleFunc("GET /api/tasks/by-project/{id}", f.projectTasks)
	mux.HandleFunc("GET /api/tasks/assigned-to/{id}", f.userTasks)
	mux.HandleFunc("GET /api/tasks/filter/{id}/{filter}", f.filterTasks)
	mux.HandleFunc("PUT /api/tasks/status-update/{status}/{id}", f.setStatus)
	mux.HandleFunc("POST /api/tasks/generate-priority", f.generatePriority)

	mux.HandleFunc("GET /api/users/{id}", f.getUser)
	mux.HandleFunc("POST /api/users/login", f.login)

	mux.HandleFunc("POST /api/notifications", f.createNotification)
	mux.HandleFunc("GET /api/notifications/user/{id}", f.userNotifications)

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.hits[route]++
		gate, arrived := f.gates[route], f.arrived[route]
		f.mu.Unlock()
		if gate != nil {
			select {
			case arrived <- struct{}{}:
			default:
			}
			<-gate
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// hold blocks route until release is called. arrived receives once the
// first request for route is being held.
func (f *fakeAPI) hold(route string) (arrived <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.gates[route] = gate
	f.arrived[route] = ch
	f.mu.Unlock()
	var once sync.Once
	return ch, func() { once.Do(func() { close(gate) }) }
}

func (f *fakeAPI) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[route]
}

func (f *fakeAPI) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeAPI) addUser(u catalog.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeAPI) addProject(p catalog.Project, memberIDs ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	f.members[p.ID] = append(f.members[p.ID], memberIDs...)
}

func (f *fakeAPI) addTask(task catalog.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"message":"not found"}`)
}

func pathID(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.PathValue(name), 10, 64)
	return v
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func sortedValues[K comparable, V any](m map[K]V, id func(V) int64) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b V) int { return int(id(a) - id(b)) })
	return out
}

func projectID(p catalog.Project) int64 { return p.ID }
func taskID(t catalog.Task) int64       { return t.ID }

func (f *fakeAPI) listProjects(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply(w, sortedValues(f.projects, projectID))
}

func (f *fakeAPI) getProject(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[pathID(r, "id")]
	if !ok {
		notFound(w)
		return
	}
	reply(w, p)
}

func (f *fakeAPI) createProject(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateProject
	if err := decode(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := catalog.Project{ID: f.id(), Name: in.Name, Description: in.Description, CreatedBy: catalog.RefTo[catalog.User](in.CreatedBy)}
	f.projects[p.ID] = p
	f.members[p.ID] = append(f.members[p.ID], in.CreatedBy)
	reply(w, p)
}

func (f *fakeAPI) updateProject(w http.ResponseWriter, r *http.Request) {
	var in catalog.UpdateProject
	if err := decode(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[in.ID]
	if !ok {
		notFound(w)
		return
	}
	if in.Name != "" {
		p.Name = in.Name
	}
	f.projects[p.ID] = p
	reply(w, p)
}

func (f *fakeAPI) deleteProject(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, pathID(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAPI) myProjects(w http.ResponseWriter, r *http.Request) {
	uid := pathID(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []catalog.Project{}
	for _, p := range sortedValues(f.projects, projectID) {
		if slices.Contains(f.members[p.ID], uid) {
			out = append(out, p)
		}
	}
	reply(w, out)
}

func (f *fakeAPI) ownedProjects(w http.ResponseWriter, r *http.Request) {
	uid := pathID(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []catalog.Project{}
	for _, p := range sortedValues(f.projects, projectID) {
		if p.CreatedBy.ID == uid {
			out = append(out, p)
		}
	}
	reply(w, out)
}

func (f *fakeAPI) projectMembers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []catalog.User{}
	for _, id := range f.members[pathID(r, "id")] {
		out = append(out, f.users[id])
	}
	reply(w, out)
}

func (f *fakeAPI) addMember(w http.ResponseWriter, r *http.Request) {
	pid, uid := pathID(r, "pid"), pathID(r, "uid")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[pid]; !ok {
		notFound(w)
		return
	}
	f.members[pid] = append(f.members[pid], uid)
	out := []catalog.User{}
	for _, id := range f.members[pid] {
		out = append(out, f.users[id])
	}
	reply(w, out)
}

func (f *fakeAPI) tasksWhere(keep func(catalog.Task) bool) []catalog.Task {
	out := []catalog.Task{}
	for _, task := range sortedValues(f.tasks, taskID) {
		if keep(task) {
			out = append(out, task)
		}
	}
	return out
}

func (f *fakeAPI) listTasks(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply(w, f.tasksWhere(func(catalog.Task) bool { return true }))
}

func (f *fakeAPI) getTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[pathID(r, "id")]
	if !ok {
		notFound(w)
		return
	}
	reply(w, task)
}

func (f *fakeAPI) projectTasks(w http.ResponseWriter, r *http.Request) {
	pid := pathID(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	reply(w, f.tasksWhere(func(t catalog.Task) bool { return t.Project.ID == pid }))
}

func (f *fakeAPI) userTasks(w http.ResponseWriter, r *http.Request) {
	uid := pathID(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	reply(w, f.tasksWhere(func(t catalog.Task) bool { return t.AssignedTo.ID == uid }))
}

func (f *fakeAPI) filterTasks(w http.ResponseWriter, r *http.Request) {
	pid, filter := pathID(r, "id"), r.PathValue("filter")
	f.mu.Lock()
	defer f.mu.Unlock()
	reply(w, f.tasksWhere(func(t catalog.Task) bool {
		return t.Project.ID == pid && strings.EqualFold(t.Status, filter)
	}))
}

// withProject embeds the project object the way the server does.
func (f *fakeAPI) withProject(t catalog.Task) catalog.Task {
	if p, ok := f.projects[t.Project.ID]; ok {
		t.Project.Value = &p
	}
	return t
}

func (f *fakeAPI) createTask(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateTask
	if err := decode(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task := f.withProject(catalog.Task{
		ID:         f.id(),
		Title:      in.Title,
		Status:     in.Status,
		Priority:   in.Priority,
		Project:    catalog.RefTo[catalog.Project](in.Project),
		AssignedTo: catalog.RefTo[catalog.User](in.AssignedTo),
	})
	f.tasks[task.ID] = task
	reply(w, task)
}

func (f *fakeAPI) updateTask(w http.ResponseWriter, r *http.Request) {
	var in catalog.UpdateTask
	if err := decode(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[in.ID]
	if !ok {
		notFound(w)
		return
	}
	if in.Title != "" {
		task.Title = in.Title
	}
	if in.Project != 0 {
		task.Project = catalog.RefTo[catalog.Project](in.Project)
	}
	task = f.withProject(task)
	f.tasks[task.ID] = task
	reply(w, task)
}

func (f *fakeAPI) setStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[pathID(r, "id")]
	if !ok {
		notFound(w)
		return
	}
	task.Status = r.PathValue("status")
	f.tasks[task.ID] = task
	reply(w, task)
}

func (f *fakeAPI) deleteTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, pathID(r, "id"))
	w.WriteHeader(http.StatusOK)
}

func (f *fakeAPI) generatePriority(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		http.Error(w, "want text/plain, got "+ct, http.StatusUnsupportedMediaType)
		return
	}
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "text/plain")
	if strings.Contains(strings.ToLower(string(body)), "urgent") {
		_, _ = io.WriteString(w, "HIGH\n")
		return
	}
	_, _ = io.WriteString(w, "LOW\n")
}

func (f *fakeAPI) getUser(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := r.PathValue("id")
	if email, ok := strings.CutPrefix(raw, "email-"); ok {
		for _, u := range f.users {
			if u.Email == email {
				reply(w, u)
				return
			}
		}
		notFound(w)
		return
	}
	u, ok := f.users[pathID(r, "id")]
	if !ok {
		notFound(w)
		return
	}
	reply(w, u)
}

func (f *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var in catalog.Login
	if err := decode(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == in.Email && in.Password == "secret" {
			reply(w, u)
			return
		}
	}
	reply(w, nil)
}

func (f *fakeAPI) createNotification(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateNotification
	if err := decode(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := catalog.Notification{ID: f.id(), Message: in.Message, Recipient: catalog.RefTo[catalog.User](in.RecipientID)}
	f.notes[n.ID] = n
	reply(w, n)
}

func (f *fakeAPI) userNotifications(w http.ResponseWriter, r *http.Request) {
	uid := pathID(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []catalog.Notification{}
	for _, n := range sortedValues(f.notes, func(n catalog.Notification) int64 { return n.ID }) {
		if n.Recipient.ID == uid {
			out = append(out, n)
		}
	}
	reply(w, out)
}
