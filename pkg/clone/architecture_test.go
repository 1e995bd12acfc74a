package clone_test

import (
	"strings"
	"testing"

	"graphclone/testutil"
)

func TestCloneDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "the clone engine must stay independent of infrastructure")
}

func TestCloneDoesNotDependOnStoreDrivers(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", func(path string) bool {
		return strings.Contains(path, "modernc.org/sqlite") || strings.Contains(path, "jackc/pgx") || strings.Contains(path, "aws-sdk-go-v2")
	}, "storage drivers belong to internal/infra")
}
