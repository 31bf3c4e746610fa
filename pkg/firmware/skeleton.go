package firmware

import "text/template"

const skeletonText = `// Generated by ardubridge. Changes are overwritten on the next build.
{{.Header}}
#define IDLE_COMMAND -1

const char CMD_TERMINATOR[] = "{{.CmdTerminator}}";
const char DATA_TERMINATOR[] = "{{.DataTerminator}}";
const char WHITESPACE_SUB[] = "{{.WhitespaceSub}}";

int currentCommand = IDLE_COMMAND;

String readFrame(const char *terminator) {
  String frame = "";
  while (!frame.endsWith(terminator)) {
    while (Serial.available() == 0) {
    }
    frame += (char)Serial.read();
  }
  return frame.substring(0, frame.length() - strlen(terminator));
}

bool isCommandFrame(String frame) {
  if (frame.length() == 0) {
    return false;
  }
  for (unsigned int i = 0; i < frame.length(); i++) {
    if (!isDigit(frame.charAt(i))) {
      return false;
    }
  }
  return true;
}

void receiveCommand() {
  if (Serial.available() == 0) {
    return;
  }
  String frame = readFrame(CMD_TERMINATOR);
  if (!isCommandFrame(frame)) {
    return;
  }
  Serial.print("ok");
  Serial.print(CMD_TERMINATOR);
  currentCommand = frame.toInt();
}

String receiveData() {
  String data = readFrame(DATA_TERMINATOR);
  data.replace(WHITESPACE_SUB, " ");
  Serial.print("ok");
  Serial.print(DATA_TERMINATOR);
  return data;
}

void sendResponse(String response) {
  Serial.print(response);
  Serial.print(DATA_TERMINATOR);
}

{{.Methods}}
void setup() {
  Serial.begin({{.BaudRate}});
{{.Setup}}}

void loop() {
  receiveCommand();
  if (currentCommand == IDLE_COMMAND) {
    return;
  }
  if (false) {
  }
{{.Loop}}}
`

var skeleton = template.Must(template.New("sketch").Parse(skeletonText))

// skeletonData holds the eight insertion points of the skeleton.
type skeletonData struct {
	Header         string
	BaudRate       int
	Setup          string
	Loop           string
	Methods        string
	CmdTerminator  string
	DataTerminator string
	WhitespaceSub  string
}
