package glgpu

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/gl/all-core/gl"
)

// Program is a linked GL program.
type Program struct {
	ID   uint32
	Name string
}

// Use activates the program
func (p *Program) Use() {
	gl.UseProgram(p.ID)
}

func (p *Program) Delete() {
	gl.DeleteProgram(p.ID)
	p.ID = 0
}

var shaderKinds = []struct {
	ext  string
	kind uint32
}{
	{".task", gl.TASK_SHADER_NV},
	{".mesh", gl.MESH_SHADER_NV},
	{".frag", gl.FRAGMENT_SHADER},
	{".comp", gl.COMPUTE_SHADER},
}

// LoadProgram compiles every <dir>/<name>.{task,mesh,frag,comp} that exists
// and links them into one program. defines are inserted after the #version
// line.
func LoadProgram(dir, name string, defines ...string) (*Program, error) {
	var shaders []uint32
	defer func() {
		for _, s := range shaders {
			gl.DeleteShader(s)
		}
	}()
	for _, k := range shaderKinds {
		path := filepath.Join(dir, name+k.ext)
		source, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not read shader file: %w", err)
		}
		shader, err := compileShader(injectDefines(string(source), defines), k.kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		shaders = append(shaders, shader)
	}
	if len(shaders) == 0 {
		return nil, fmt.Errorf("program %q: no shader sources in %s", name, dir)
	}
	id, err := linkProgram(shaders)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", name, err)
	}
	return &Program{ID: id, Name: name}, nil
}

func injectDefines(source string, defines []string) string {
	if len(defines) == 0 {
		return source
	}
	var block strings.Builder
	for _, d := range defines {
		block.WriteString("#define ")
		block.WriteString(d)
		block.WriteByte('\n')
	}
	if strings.HasPrefix(source, "#version") {
		if i := strings.IndexByte(source, '\n'); i >= 0 {
			return source[:i+1] + block.String() + source[i+1:]
		}
		return source + "\n" + block.String()
	}
	return block.String() + source
}

func linkProgram(shaders []uint32) (uint32, error) {
	program := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(program, s)
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)

		return 0, fmt.Errorf("failed to link program: %v", log)
	}
	for _, s := range shaders {
		gl.DetachShader(program, s)
	}
	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)

		return 0, fmt.Errorf("failed to compile shader: %v", log)
	}
	return shader, nil
}
