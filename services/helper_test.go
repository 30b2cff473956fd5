package services

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

func frame(stream byte, payload string) []byte {
	h := make([]byte, 8)
	h[0] = stream
	binary.BigEndian.PutUint32(h[4:], uint32(len(payload)))
	return append(h, payload...)
}

func TestDemuxDockerLogs(t *testing.T) {
	var src bytes.Buffer
	src.Write(frame(1, "accepting connections\n"))
	src.Write(frame(2, "warning\n"))
	src.Write(frame(1, ""))
	src.Write(frame(1, "done\n"))

	var stdout, stderr bytes.Buffer
	require.NoError(t, DemuxDockerLogs(&stdout, &stderr, &src))
	assert.Equal(t, "accepting connections\ndone\n", stdout.String())
	assert.Equal(t, "warning\n", stderr.String())
}

func TestDemuxDockerLogs_TruncatedPayload(t *testing.T) {
	b := frame(1, "accepting connections\n")
	var stdout, stderr bytes.Buffer
	err := DemuxDockerLogs(&stdout, &stderr, bytes.NewReader(b[:len(b)-3]))
	assert.Error(t, err)
}

func TestDockerNames(t *testing.T) {
	assert.Equal(t, "stringshare-db", DockerServiceName("StringShare", "db"))
	assert.Equal(t, "my-stack-default", DockerNetworkName("My Stack"))
	assert.Equal(t, "stringshare-db-data", DockerVolumeName("stringshare", "db-data"))
}

func healthy(name string, deps ...string) models.ServiceDescriptor {
	s := models.ServiceDescriptor{
		Name:        name,
		Image:       name + ":latest",
		HealthCheck: &models.HealthCheck{Test: []string{"CMD", "true"}},
	}
	for _, d := range deps {
		s.DependsOn = append(s.DependsOn, models.Dependency{Service: d, Condition: models.ConditionServiceHealthy})
	}
	return s
}

func TestCheckUniqueServiceNames(t *testing.T) {
	require.NoError(t, CheckUniqueServiceNames([]models.ServiceDescriptor{healthy("a"), healthy("b")}))

	err := CheckUniqueServiceNames([]models.ServiceDescriptor{healthy("a"), healthy("a")})
	assert.EqualError(t, err, `service "a" is declared twice`)

	err = CheckUniqueServiceNames([]models.ServiceDescriptor{{Name: " "}})
	assert.EqualError(t, err, "service with empty name")
}

func TestCheckDependsOnServicesExist(t *testing.T) {
	err := CheckDependsOnServicesExist([]models.ServiceDescriptor{healthy("app", "db")})
	assert.EqualError(t, err, `service "app" depends_on "db", but "db" does not exist`)

	err = CheckDependsOnServicesExist([]models.ServiceDescriptor{healthy("app", "app")})
	assert.EqualError(t, err, `service "app" depends_on itself`)
}

func TestCheckDependencyConditions(t *testing.T) {
	db := healthy("db")
	app := healthy("app", "db")
	require.NoError(t, CheckDependencyConditions([]models.ServiceDescriptor{app, db}))

	app.DependsOn[0].Condition = "service_started"
	err := CheckDependencyConditions([]models.ServiceDescriptor{app, db})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported condition "service_started"`)

	app = healthy("app", "db")
	db.HealthCheck = nil
	err = CheckDependencyConditions([]models.ServiceDescriptor{app, db})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"db" declares no healthcheck`)
}

func TestCheckCircularDependencies(t *testing.T) {
	err := CheckCircularDependencies([]models.ServiceDescriptor{
		healthy("a", "b"),
		healthy("b", "c"),
		healthy("c", "a"),
	})
	assert.EqualError(t, err, `circular dependency detected: "a" -> "b" -> "c" -> "a"`)

	require.NoError(t, CheckCircularDependencies([]models.ServiceDescriptor{
		healthy("app", "db", "cache"),
		healthy("cache", "db"),
		healthy("db"),
	}))
}

func TestCheckServiceVolumeMounts(t *testing.T) {
	declared, err := DeclaredVolumeSet([]models.VolumeDescriptor{{Name: "db-data"}})
	require.NoError(t, err)

	ok := models.ServiceDescriptor{Name: "db", Volumes: []models.VolumeMount{
		{Type: models.VolumeMountNamed, Source: "db-data", Target: "/var/lib/postgresql/data"},
		{Type: models.VolumeMountBind, Source: "/srv/init", Target: "/docker-entrypoint-initdb.d", ReadOnly: true},
	}}
	require.NoError(t, CheckServiceVolumeMounts([]models.ServiceDescriptor{ok}, declared))

	for _, tc := range []struct {
		name  string
		mount models.VolumeMount
		want  string
	}{
		{"undeclared", models.VolumeMount{Type: models.VolumeMountNamed, Source: "other", Target: "/data"}, `"other" is not declared`},
		{"relative target", models.VolumeMount{Type: models.VolumeMountNamed, Source: "db-data", Target: "data"}, "must be absolute"},
		{"relative bind", models.VolumeMount{Type: models.VolumeMountBind, Source: "./app", Target: "/app"}, `bind source "./app" must be absolute`},
		{"unknown type", models.VolumeMount{Type: "tmpfs", Source: "x", Target: "/tmp"}, "unknown type"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := models.ServiceDescriptor{Name: "db", Volumes: []models.VolumeMount{tc.mount}}
			err := CheckServiceVolumeMounts([]models.ServiceDescriptor{svc}, declared)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	dup := models.ServiceDescriptor{Name: "db", Volumes: []models.VolumeMount{
		{Type: models.VolumeMountNamed, Source: "db-data", Target: "/data"},
		{Type: models.VolumeMountBind, Source: "/srv", Target: "/data"},
	}}
	err = CheckServiceVolumeMounts([]models.ServiceDescriptor{dup}, declared)
	assert.EqualError(t, err, `service "db" has duplicate volume target "/data"`)
}

func TestDeclaredVolumeSet_Duplicate(t *testing.T) {
	_, err := DeclaredVolumeSet([]models.VolumeDescriptor{{Name: "db-data"}, {Name: "db-data"}})
	assert.EqualError(t, err, `volumes contains duplicate volume "db-data"`)
}

func TestCheckHostPortCollisions(t *testing.T) {
	app := models.ServiceDescriptor{Name: "app", Bindings: []models.BindingSpec{{HostPort: 8081, ContainerPort: 80}}}
	db := models.ServiceDescriptor{Name: "db", Bindings: []models.BindingSpec{{HostPort: 5433, ContainerPort: 5433}}}
	require.NoError(t, CheckHostPortCollisions([]models.ServiceDescriptor{app, db}))

	db.Bindings[0].HostPort = 8081
	err := CheckHostPortCollisions([]models.ServiceDescriptor{app, db})
	assert.EqualError(t, err, `host port 8081/tcp is bound by both "app" and "db"`)

	db.Bindings[0].Protocol = "udp"
	require.NoError(t, CheckHostPortCollisions([]models.ServiceDescriptor{app, db}))

	db.Bindings[0].HostPort = 0
	err = CheckHostPortCollisions([]models.ServiceDescriptor{app, db})
	assert.EqualError(t, err, `service "db" has invalid host port 0`)
}
