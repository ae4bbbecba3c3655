// Package extract turns normalized program pages into validated ProgramInfo
// documents: one extraction request followed by a bounded validate-and-correct
// loop.
package extract

// ProgramSchema is the JSON schema sent to the model with every extraction
// and validation prompt. It mirrors crawler.ProgramInfo.
const ProgramSchema = `{
  "title": "ProgramInfo",
  "type": "object",
  "properties": {
    "program_name": {"type": "string", "description": "Full programme name"},
    "university": {"type": "string", "description": "Partner university or awarding institution"},
    "introduction": {"type": "string", "description": "Programme overview"},
    "academic_level": {"type": "string", "description": "Academic level, e.g. Bachelor, Master, Diploma"},
    "programme_type": {"type": "string", "description": "Mode and duration, e.g. full-time 3 years"},
    "domestic_total_fee": {"type": "string", "description": "Total fee for local students", "default": ""},
    "international_total_fee": {"type": "string", "description": "Total fee for international students", "default": ""},
    "application_period": {"type": "string", "description": "Application window", "default": ""},
    "course_modules": {
      "type": "array",
      "description": "Ordered list of course modules",
      "items": {
        "type": "object",
        "properties": {
          "module_name": {"type": "string"},
          "course_modules": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "course_name": {"type": "string"},
                "course_description": {"type": "string", "description": "Description, may include credits", "default": ""}
              },
              "required": ["course_name"]
            }
          }
        },
        "required": ["module_name", "course_modules"]
      }
    },
    "admission_requirements": {
      "type": "object",
      "description": "Admission requirements keyed by applicant category, e.g. international and local students",
      "additionalProperties": {
        "type": "array",
        "items": {
          "type": "object",
          "properties": {
            "requirement_type": {"type": "string", "description": "e.g. academic, language"},
            "requirement_description": {"type": "string"},
            "specific_requirements": {"type": "object", "description": "e.g. {\"IELTS\": \"6.5\", \"GPA\": \"3.0\"}"}
          },
          "required": ["requirement_type", "requirement_description", "specific_requirements"]
        }
      }
    }
  },
  "required": ["program_name", "university", "introduction", "academic_level", "programme_type", "course_modules", "admission_requirements"]
}`
