package stack

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

const deployStack = "../../deploy/stack.yaml"

func TestLoadStack_Deploy(t *testing.T) {
	s, err := LoadStack(deployStack)
	require.NoError(t, err)

	assert.Equal(t, "stringshare", s.Name)
	assert.Equal(t, []string{"app", "db"}, s.ServiceNames())
	assert.Equal(t, []string{"a", "b"}, s.VariantNames())
	assert.Equal(t, models.ConditionServiceHealthy, s.Services["app"].DependsOn["db"].Condition)
	require.NotNil(t, s.Services["app"].Build)
	assert.Equal(t, "./app", s.Services["app"].Build.Context)
}

func TestResolve_Variants(t *testing.T) {
	s, err := LoadStack(deployStack)
	require.NoError(t, err)

	for _, tc := range []struct {
		variant string
		appPort int
		dbPort  int
	}{
		{"a", 8081, 5433},
		{"b", 8080, 5432},
	} {
		t.Run(tc.variant, func(t *testing.T) {
			d, err := Resolve(s, tc.variant, "/srv/stringshare")
			require.NoError(t, err)
			assert.Equal(t, "stringshare", d.Project)
			assert.Equal(t, tc.variant, d.Variant)

			app, ok := d.Service("app")
			require.True(t, ok)
			db, ok := d.Service("db")
			require.True(t, ok)

			assert.Equal(t, []int{tc.appPort}, app.HostPorts())
			assert.Equal(t, 80, app.Bindings[0].ContainerPort)
			assert.Equal(t, []int{tc.dbPort}, db.HostPorts())
			assert.Equal(t, tc.dbPort, db.Bindings[0].ContainerPort)
			assert.NotEqual(t, app.HostPorts(), db.HostPorts())

			assert.Equal(t, "stringshare", db.Environment["POSTGRES_DB"])
			assert.Equal(t, "postgres", db.Environment["POSTGRES_USER"])
			assert.Equal(t, db.Environment["PGPORT"], app.Environment["POSTGRES_PORT"])
			assert.Equal(t, "db", app.Environment["POSTGRES_HOST"])

			require.NotNil(t, app.Build)
			assert.Equal(t, "/srv/stringshare/app", app.Build.Context)
			assert.Equal(t, "Dockerfile", app.Build.Dockerfile)
			assert.Equal(t, []models.VolumeMount{{Type: models.VolumeMountBind, Source: "/srv/stringshare/app", Target: "/app"}}, app.Volumes)
			assert.Equal(t, []models.Dependency{{Service: "db", Condition: models.ConditionServiceHealthy}}, app.DependsOn)
			assert.Nil(t, app.HealthCheck)

			assert.Equal(t, "postgres:16", db.Image)
			assert.Equal(t, []models.VolumeMount{{Type: models.VolumeMountNamed, Source: "db-data", Target: "/var/lib/postgresql/data"}}, db.Volumes)
			require.NotNil(t, db.HealthCheck)
			assert.Equal(t, []string{"CMD", "pg_isready", "-d", "stringshare"}, db.HealthCheck.Test)
			assert.Equal(t, 2*time.Second, db.HealthCheck.Interval)
			assert.Equal(t, 5*time.Second, db.HealthCheck.Timeout)
			assert.Equal(t, 30, db.HealthCheck.Retries)

			require.Len(t, d.Volumes, 1)
			assert.Equal(t, "db-data", d.Volumes[0].Name)
			assert.Equal(t, "database", d.Volumes[0].Labels["deploy-commander.role"])
		})
	}
}

func TestResolve_UnknownVariant(t *testing.T) {
	s, err := LoadStack(deployStack)
	require.NoError(t, err)

	_, err = Resolve(s, "c", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `variant "c" is not defined`)
}

func TestResolve_MissingValue(t *testing.T) {
	s, err := ParseStack([]byte(`
name: demo
services:
  web:
    image: nginx
    ports: ["${PORT}:80"]
variants:
  a: {}
`))
	require.NoError(t, err)

	_, err = Resolve(s, "a", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `variant "a" does not define PORT`)
}

func TestResolve_HealthCheckNone(t *testing.T) {
	s, err := ParseStack([]byte(`
name: demo
services:
  web:
    image: nginx
    healthcheck:
      test: ["NONE"]
variants:
  a: {}
`))
	require.NoError(t, err)

	d, err := Resolve(s, "a", ".")
	require.NoError(t, err)
	assert.Nil(t, d.Services[0].HealthCheck)
	assert.False(t, d.Services[0].HasHealthCheck())
}

func TestResolve_BadDuration(t *testing.T) {
	s, err := ParseStack([]byte(`
name: demo
services:
  db:
    image: postgres:16
    healthcheck:
      test: pg_isready
      interval: soon
variants:
  a: {}
`))
	require.NoError(t, err)

	_, err = Resolve(s, "a", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}

func TestParseStack_ShortForms(t *testing.T) {
	s, err := ParseStack([]byte(`
name: demo
services:
  db:
    image: postgres:16
    environment:
      - POSTGRES_DB=demo
    healthcheck:
      test: pg_isready
  web:
    build:
      context: ./web
      dockerfile: Dockerfile.dev
    depends_on: [db]
    command: serve --port 80
`))
	require.NoError(t, err)

	assert.Equal(t, models.EnvironmentMap{"POSTGRES_DB": "demo"}, s.Services["db"].Environment)
	assert.Equal(t, models.StringOrList{"pg_isready"}, s.Services["db"].HealthCheck.Test)
	assert.Equal(t, "Dockerfile.dev", s.Services["web"].Build.Dockerfile)
	assert.Equal(t, models.ConditionServiceHealthy, s.Services["web"].DependsOn["db"].Condition)
	assert.Equal(t, models.StringOrList{"serve --port 80"}, s.Services["web"].Command)
}

func TestParseStack_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
		want string
	}{
		{"empty", ``, "empty stack document"},
		{"unknown key", "name: demo\nservices:\n  web:\n    image: nginx\n    replicas: 2\n", "replicas"},
		{"no name", "services:\n  web:\n    image: nginx\n", "Name is required"},
		{"no services", "name: demo\n", "Services is required"},
		{"bad service name", "name: demo\nservices:\n  Web:\n    image: nginx\n", "not a valid name"},
		{"image and build", "name: demo\nservices:\n  web:\n    image: nginx\n    build: ./web\n", "mutually exclusive"},
		{"neither image nor build", "name: demo\nservices:\n  web:\n    command: serve\n", "one of image or build"},
		{"unknown dependency", "name: demo\nservices:\n  web:\n    image: nginx\n    depends_on: [db]\n", `depends on unknown service "db"`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseStack([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadStack_Missing(t *testing.T) {
	_, err := LoadStack(filepath.Join(t.TempDir(), "stack.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParsePort(t *testing.T) {
	b, err := ParsePort("8081:80")
	require.NoError(t, err)
	assert.Equal(t, models.BindingSpec{HostPort: 8081, ContainerPort: 80}, b)

	b, err = ParsePort("127.0.0.1:5433:5433/tcp")
	require.NoError(t, err)
	assert.Equal(t, models.BindingSpec{HostIP: "127.0.0.1", HostPort: 5433, ContainerPort: 5433, Protocol: "tcp"}, b)

	for _, bad := range []string{"80", "x:80", "8080:0", "8080:70000", "8080:80/sctp", "nohost:8080:80"} {
		_, err := ParsePort(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseVolume(t *testing.T) {
	m, err := ParseVolume("db-data:/var/lib/postgresql/data")
	require.NoError(t, err)
	assert.Equal(t, models.VolumeMount{Type: models.VolumeMountNamed, Source: "db-data", Target: "/var/lib/postgresql/data"}, m)

	m, err = ParseVolume("./app:/app:ro")
	require.NoError(t, err)
	assert.Equal(t, models.VolumeMount{Type: models.VolumeMountBind, Source: "./app", Target: "/app", ReadOnly: true}, m)

	for _, bad := range []string{"/data", "a:b:c:d", "a:/b:rx", ":/b"} {
		_, err := ParseVolume(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolve_EscapedDollar(t *testing.T) {
	s, err := ParseStack([]byte(`
name: demo
services:
  db:
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: "pa$$word"
      GREETING: "$$$NAME"
    healthcheck:
      test: ["CMD-SHELL", "pg_isready -U $$POSTGRES_USER -p ${PGPORT}"]
variants:
  a:
    PGPORT: "5433"
    NAME: stringshare
`))
	require.NoError(t, err)

	d, err := Resolve(s, "a", ".")
	require.NoError(t, err)

	db := d.Services[0]
	assert.Equal(t, []string{"CMD-SHELL", "pg_isready -U $POSTGRES_USER -p 5433"}, db.HealthCheck.Test)
	assert.Equal(t, "pa$word", db.Environment["POSTGRES_PASSWORD"])
	assert.Equal(t, "$stringshare", db.Environment["GREETING"])
}
