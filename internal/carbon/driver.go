package carbon

import (
	"fmt"

	"carbon-factory/internal/source"
)

// workloadFunc is the entry point the isolated runner invokes after
// loading a driver program. The name is unusual on purpose: it must not
// collide with anything the oracle generates.
const workloadFunc = "carbonWorkload"

// BuildDriver synthesizes the measurement driver program: the candidate
// code plus a workload function that invokes the synthesized call
// expression a fixed number of times. The same iteration count is used for
// every measurement in a run so baseline and candidates stay comparable.
func BuildDriver(code string, iterations int) (string, error) {
	_, call, err := Synthesize(code)
	if err != nil {
		return "", err
	}
	workload := fmt.Sprintf("func %s() {\n\tfor i := 0; i < %d; i++ {\n\t\t%s\n\t}\n}", workloadFunc, iterations, call)
	return source.WrapMain(code, workload), nil
}
